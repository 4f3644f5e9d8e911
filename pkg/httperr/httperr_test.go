package httperr

import "testing"

func TestIsBadRequest(t *testing.T) {
	if IsBadRequest(nil) {
		t.Fatalf("expected false for nil")
	}
	if IsBadRequest(NewBadRequest("bad")) != true {
		t.Fatalf("expected true for BadRequestError")
	}
	if IsBadRequest(assertErr("other")) {
		t.Fatalf("expected false for non-BadRequestError")
	}
}

func TestIsForbidden(t *testing.T) {
	if IsForbidden(nil) {
		t.Fatalf("expected false for nil")
	}
	if !IsForbidden(NewForbidden("denied")) {
		t.Fatalf("expected true for ForbiddenError")
	}
	if IsForbidden(NewNotFound("gone")) {
		t.Fatalf("expected false for NotFoundError")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(NewNotFound("gone")) {
		t.Fatalf("expected true for NotFoundError")
	}
	if IsNotFound(NewBadRequest("bad")) {
		t.Fatalf("expected false for BadRequestError")
	}
}

func TestIsConflict(t *testing.T) {
	if !IsConflict(NewConflict("busy")) {
		t.Fatalf("expected true for ConflictError")
	}
	if IsConflict(assertErr("other")) {
		t.Fatalf("expected false for non-ConflictError")
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
