package p2p

import (
	"errors"
	"testing"

	"github.com/quic-go/quic-go"
)

func TestClassifyCloseErrLocallyClosedIsBenign(t *testing.T) {
	err := &quic.ApplicationError{Remote: false, ErrorCode: quic.ApplicationErrorCode(2), ErrorMessage: "shutdown"}
	info := classifyCloseErr(err)
	if info.kind != closeLocallyClosed {
		t.Fatalf("kind = %v, want closeLocallyClosed", info.kind)
	}
	if !info.benign() {
		t.Fatal("a locally closed connection must always be benign")
	}
}

func TestClassifyCloseErrDuplicateSuppressionIsBenign(t *testing.T) {
	err := &quic.ApplicationError{Remote: true, ErrorCode: closeCodeAlreadyConnected, ErrorMessage: "already connected"}
	info := classifyCloseErr(err)
	if info.kind != closeApplicationClosed {
		t.Fatalf("kind = %v, want closeApplicationClosed", info.kind)
	}
	if !info.benign() {
		t.Fatal("a remote close with code 1 must be benign")
	}
}

func TestClassifyCloseErrOtherApplicationCloseIsNotBenign(t *testing.T) {
	err := &quic.ApplicationError{Remote: true, ErrorCode: quic.ApplicationErrorCode(99), ErrorMessage: "boom"}
	info := classifyCloseErr(err)
	if info.benign() {
		t.Fatal("an unrelated remote application close must not be benign")
	}
}

func TestClassifyCloseErrTimeout(t *testing.T) {
	info := classifyCloseErr(&quic.IdleTimeoutError{})
	if info.kind != closeTimedOut {
		t.Fatalf("kind = %v, want closeTimedOut", info.kind)
	}
	if info.benign() {
		t.Fatal("a timeout must not be classified as benign")
	}
}

func TestClassifyCloseErrOther(t *testing.T) {
	info := classifyCloseErr(errors.New("connection reset"))
	if info.kind != closeOther {
		t.Fatalf("kind = %v, want closeOther", info.kind)
	}
	if info.benign() {
		t.Fatal("an unrecognized error must not be classified as benign")
	}
}
