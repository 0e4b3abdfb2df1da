package rpc

import (
	"testing"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestCodec_FeedsMessagesAreJSON(t *testing.T) {
	b, err := codec{}.Marshal(&FeedRequest{Name: "tracks"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `{"name":"tracks"}` {
		t.Fatalf("got %s", b)
	}
	var req FeedRequest
	if err := (codec{}).Unmarshal(b, &req); err != nil || req.Name != "tracks" {
		t.Fatalf("Unmarshal = %+v, %v", req, err)
	}
}

func TestCodec_DelegatesProto(t *testing.T) {
	b, err := codec{}.Marshal(wrapperspb.String("x"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out := new(wrapperspb.StringValue)
	if err := (codec{}).Unmarshal(b, out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.GetValue() != "x" {
		t.Fatalf("got %q", out.GetValue())
	}
}

func TestCodec_RejectsOtherTypes(t *testing.T) {
	if _, err := (codec{}).Marshal(42); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}
