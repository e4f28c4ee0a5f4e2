package validation

import (
	"errors"
	"testing"
)

type signup struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

func TestStruct(t *testing.T) {
	if err := Struct(signup{Email: "ana@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	err := Struct(signup{Email: "nope", Password: "123"})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Fields["email"] != "email" || verr.Fields["password"] != "min" {
		t.Fatalf("unexpected fields %#v", verr.Fields)
	}
	if verr.Error() != "validation failed: email email, password min" {
		t.Fatalf("unexpected message %q", verr.Error())
	}
}
