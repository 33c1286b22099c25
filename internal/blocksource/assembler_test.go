package blocksource

import "testing"

func TestAssemblerReassembly(t *testing.T) {
	var a Assembler
	a.Begin(&PartialResponse{PartialBlock: []byte("head-"), RemainingFollowUps: 2})

	if !a.Active() {
		t.Fatal("expected assembly active")
	}

	if out, err := a.Append(&FollowUpResponse{Bytes: []byte("mid-")}); err != nil || out != nil {
		t.Fatalf("unexpected early completion: out=%v err=%v", out, err)
	}

	out, err := a.Append(&FollowUpResponse{Bytes: []byte("tail")})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if string(out) != "head-mid-tail" {
		t.Fatalf("assembled = %q, want %q", out, "head-mid-tail")
	}
	if a.Active() {
		t.Fatal("expected assembly reset after completion")
	}
}

func TestAssemblerRejectsUnstartedAppend(t *testing.T) {
	var a Assembler
	if _, err := a.Append(&FollowUpResponse{Bytes: []byte("x")}); err != ErrAssemblyMismatch {
		t.Fatalf("err = %v, want ErrAssemblyMismatch", err)
	}
}
