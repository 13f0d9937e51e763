package sipmsg_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dantte-lp/goprotos/internal/sipmsg"
)

const response = "SIP/2.0 180 Ringing\r\n" +
	"Via: SIP/2.0/UDP 10.0.0.1:5060;branch=z9hG4bKabc\r\n" +
	"call-id:  1f0e-42  \r\n" +
	"CSeq: 1 INVITE\r\n" +
	"Content-Length: 0\r\n\r\n"

func TestParseStatusLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		msg     string
		want    sipmsg.StatusResponse
		wantErr bool
	}{
		{
			name: "ringing",
			msg:  response,
			want: sipmsg.StatusResponse{Version: "2.0", Code: 180, Reason: "Ringing"},
		},
		{
			name: "empty reason",
			msg:  "SIP/2.0 200 \r\n",
			want: sipmsg.StatusResponse{Version: "2.0", Code: 200, Reason: ""},
		},
		{
			name: "odd class",
			msg:  "SIP/3.1 999 Whatever\n",
			want: sipmsg.StatusResponse{Version: "3.1", Code: 999, Reason: "Whatever"},
		},
		{name: "request line", msg: "INVITE sip:bob@host SIP/2.0\r\n", wantErr: true},
		{name: "two digit code", msg: "SIP/2.0 20 OK\r\n", wantErr: true},
		{name: "four digit code", msg: "SIP/2.0 2000 OK\r\n", wantErr: true},
		{name: "empty", msg: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := sipmsg.ParseStatusLine(tt.msg)
			if tt.wantErr {
				if !errors.Is(err, sipmsg.ErrNoStatusLine) {
					t.Fatalf("ParseStatusLine error = %v, want ErrNoStatusLine", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStatusLine: unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseStatusLine mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStatusClass(t *testing.T) {
	t.Parallel()

	for code, class := range map[int]int{100: 1, 183: 1, 200: 2, 302: 3, 487: 4, 503: 5, 603: 6, 999: 9} {
		if got := (sipmsg.StatusResponse{Code: code}).Class(); got != class {
			t.Errorf("Class(%d) = %d, want %d", code, got, class)
		}
	}
}

func TestHeaders(t *testing.T) {
	t.Parallel()

	callID, err := sipmsg.CallID(response)
	if err != nil {
		t.Fatalf("CallID: %v", err)
	}
	if callID != "1f0e-42" {
		t.Errorf("CallID = %q, want %q", callID, "1f0e-42")
	}

	method, err := sipmsg.CSeqMethod(response)
	if err != nil {
		t.Fatalf("CSeqMethod: %v", err)
	}
	if method != sipmsg.MethodInvite {
		t.Errorf("CSeqMethod = %q, want %q", method, sipmsg.MethodInvite)
	}

	if _, err := sipmsg.CallID("SIP/2.0 200 OK\r\nCSeq: 1 INVITE\r\n\r\n"); !errors.Is(err, sipmsg.ErrNoHeader) {
		t.Errorf("CallID(missing) error = %v, want ErrNoHeader", err)
	}
	if _, err := sipmsg.CallID("SIP/2.0 200 OK\r\nCall-ID:   \r\n\r\n"); !errors.Is(err, sipmsg.ErrNoHeader) {
		t.Errorf("CallID(empty) error = %v, want ErrNoHeader", err)
	}
	if _, err := sipmsg.CSeqMethod("SIP/2.0 200 OK\r\nCSeq: 1\r\n\r\n"); !errors.Is(err, sipmsg.ErrNoHeader) {
		t.Errorf("CSeqMethod(no method) error = %v, want ErrNoHeader", err)
	}
}

func TestRequestMethod(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"INVITE sip:bob@10.0.0.5 SIP/2.0\r\n": "INVITE",
		"CANCEL sip:bob@10.0.0.5 SIP/2.0":     "CANCEL",
		"CANCEL\r\n\r\n":                      "CANCEL",
		"":                                    "",
	}
	for msg, want := range tests {
		if got := sipmsg.RequestMethod(msg); got != want {
			t.Errorf("RequestMethod(%q) = %q, want %q", msg, got, want)
		}
	}
}

func TestRewriteMethod(t *testing.T) {
	t.Parallel()

	cancel := "CANCEL sip:bob@10.0.0.5 SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.1;branch=z9hG4bKCANCEL\r\n" +
		"CSeq: 2 CANCEL\r\n" +
		"Content-Length: 0\r\n\r\n"

	want := "ACK sip:bob@10.0.0.5 SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.1;branch=z9hG4bKCANCEL\r\n" +
		"CSeq: 2 ACK\r\n" +
		"Content-Length: 0\r\n\r\n"

	got := sipmsg.RewriteMethod(cancel, sipmsg.MethodCancel, sipmsg.MethodAck)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RewriteMethod mismatch (-want +got):\n%s", diff)
	}
}
