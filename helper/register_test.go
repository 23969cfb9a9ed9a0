package helper

import "testing"

func TestEncodeRegistration_FixedLayout(t *testing.T) {
	buf := encodeRegistration(1, 4242, "agent-a", "node")
	if len(buf) != 4+4+32+128 {
		t.Fatalf("len = %d, want %d", len(buf), 4+4+32+128)
	}
	if buf[0] != 1 || buf[1] != 0 || buf[2] != 0 || buf[3] != 0 {
		t.Errorf("version field = %v, want little-endian 1", buf[0:4])
	}
	// pid 4242 = 0x1092
	if buf[4] != 0x92 || buf[5] != 0x10 {
		t.Errorf("pid field = %v, want little-endian 4242", buf[4:8])
	}
	agentField := buf[8:40]
	if string(agentField[:7]) != "agent-a" {
		t.Errorf("agent name field = %q", agentField[:7])
	}
	for _, b := range agentField[7:] {
		if b != 0 {
			t.Fatalf("agent name field not NUL-padded: %v", agentField)
		}
	}
}

func TestCopyTruncated_TruncatesAndNULTerminatesOverlongStrings(t *testing.T) {
	dst := make([]byte, 4)
	copyTruncated(dst, "toolongname")
	if string(dst[:3]) != "too" || dst[3] != 0 {
		t.Errorf("copyTruncated = %q (%v), want \"too\\x00\"", dst, dst)
	}
}

func TestCopyTruncated_ExactFitStillReservesNUL(t *testing.T) {
	dst := make([]byte, 4)
	copyTruncated(dst, "four")
	if string(dst[:3]) != "fou" || dst[3] != 0 {
		t.Errorf("copyTruncated = %q (%v), want \"fou\\x00\"", dst, dst)
	}
}

func TestPutLE32_RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	putLE32(buf, 0x01020304)
	want := []byte{0x04, 0x03, 0x02, 0x01}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("putLE32 = %v, want %v", buf, want)
		}
	}
}
