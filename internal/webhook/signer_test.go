package webhook

import "testing"

func TestSignHMAC(t *testing.T) {
	got := SignHMAC("secret", "POST\n/hook\n1700000000\nnonce\nbodyhash")
	if len(got) != 64 { // hex-encoded sha256 length
		t.Fatalf("bad length: %s", got)
	}
	if got != SignHMAC("secret", "POST\n/hook\n1700000000\nnonce\nbodyhash") {
		t.Fatalf("signature not deterministic")
	}
}

func TestVerifyHMAC(t *testing.T) {
	canonical := "POST\n/hook\n1700000000\nnonce\nbodyhash"
	sig := SignHMAC("secret", canonical)
	if !VerifyHMAC("secret", canonical, sig) {
		t.Fatalf("valid signature rejected")
	}
	if VerifyHMAC("other", canonical, sig) {
		t.Fatalf("signature verified with wrong secret")
	}
}
