package replace_test

import (
	"context"
	"errors"
	"net/netip"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dantte-lp/goprotos/internal/replace"
)

// fakeResolver answers from a fixed table and counts lookups.
type fakeResolver struct {
	hosts   map[string][]netip.Addr
	local   netip.Addr
	lookups int
}

func (f *fakeResolver) LookupIPv4(_ context.Context, host string) ([]netip.Addr, error) {
	f.lookups++
	addrs, ok := f.hosts[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return addrs, nil
}

func (f *fakeResolver) LocalIPv4() (netip.Addr, error) {
	if !f.local.IsValid() {
		return netip.Addr{}, errors.New("no interfaces")
	}
	return f.local, nil
}

func newResolver() *fakeResolver {
	return &fakeResolver{
		hosts: map[string][]netip.Addr{
			"alice.example.test": {netip.MustParseAddr("192.0.2.20")},
			"proxy.example.test": {netip.MustParseAddr("192.0.2.30")},
			"v6.example.test":    {netip.MustParseAddr("2001:db8::5")},
			"empty.example.test": {},
		},
		local: netip.MustParseAddr("10.9.8.7"),
	}
}

// -------------------------------------------------------------------------
// URI grammar
// -------------------------------------------------------------------------

func TestParseURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    replace.URI
		wantErr bool
	}{
		{in: "bob@10.0.0.5:5060", want: replace.URI{Raw: "bob@10.0.0.5:5060", User: "bob", Host: "10.0.0.5", Port: "5060"}},
		{in: "sip:bob:secret@host.test", want: replace.URI{Raw: "bob:secret@host.test", User: "bob", Pass: "secret", Host: "host.test"}},
		{in: "host.test:5070", want: replace.URI{Raw: "host.test:5070", Host: "host.test", Port: "5070"}},
		{in: "10.0.0.1", want: replace.URI{Raw: "10.0.0.1", Host: "10.0.0.1"}},
		{in: "", wantErr: true},
		{in: "bob@", wantErr: true},
		{in: "@host", wantErr: true},
		{in: "bob@host:", wantErr: true},
		{in: "bob@host:0", wantErr: true},
		{in: "bob@host:65536", wantErr: true},
		{in: "bob@host:50x", wantErr: true},
		{in: "bob smith@host", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := replace.ParseURI(tt.in)
			if tt.wantErr {
				if !errors.Is(err, replace.ErrInvalidURI) {
					t.Fatalf("ParseURI(%q) error = %v, want ErrInvalidURI", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURI(%q): %v", tt.in, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseURI(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

// -------------------------------------------------------------------------
// Static set
// -------------------------------------------------------------------------

func TestNewStaticTokens(t *testing.T) {
	t.Parallel()

	res := newResolver()
	s, err := replace.NewStatic(context.Background(), replace.Options{
		ToURI:   "bob@10.0.0.5:5060",
		FromURI: "alice:pw@alice.example.test:5070",
	}, res)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}

	want := map[string]string{
		"To":              "bob@10.0.0.5:5060",
		"To-User":         "bob",
		"To-Pass":         "",
		"To-Host":         "10.0.0.5",
		"To-Port":         "5060",
		"From":            "alice:pw@alice.example.test:5070",
		"From-User":       "alice",
		"From-Pass":       "pw",
		"From-Host":       "alice.example.test",
		"From-Port":       "5070",
		"From-Address":    "192.0.2.20:5070",
		"From-IP":         "192.0.2.20",
		"Teardown-Method": "CANCEL",
		"Local-Port":      "5070",
	}
	if diff := cmp.Diff(want, s.Tokens()); diff != "" {
		t.Errorf("Tokens mismatch (-want +got):\n%s", diff)
	}

	if got := s.Dest.String(); got != "10.0.0.5:5060" {
		t.Errorf("Dest = %s, want 10.0.0.5:5060", got)
	}
	if res.lookups != 1 {
		t.Errorf("lookups = %d, want 1 (literal destination needs none)", res.lookups)
	}
}

func TestNewStaticPorts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		opts      replace.Options
		wantDest  string
		wantLocal uint16
	}{
		{
			name:      "defaults",
			opts:      replace.Options{ToURI: "bob@10.0.0.5"},
			wantDest:  "10.0.0.5:5060",
			wantLocal: 5060,
		},
		{
			name:      "uri ports",
			opts:      replace.Options{ToURI: "bob@10.0.0.5:5080", FromURI: "10.1.1.1:5090"},
			wantDest:  "10.0.0.5:5080",
			wantLocal: 5090,
		},
		{
			name:      "explicit ports win",
			opts:      replace.Options{ToURI: "bob@10.0.0.5:5080", FromURI: "10.1.1.1:5090", DstPort: 6000, LocalPort: 6001},
			wantDest:  "10.0.0.5:6000",
			wantLocal: 6001,
		},
		{
			name:      "sendto overrides host only",
			opts:      replace.Options{ToURI: "bob@example.invalid:5080", SendTo: "proxy.example.test"},
			wantDest:  "192.0.2.30:5080",
			wantLocal: 5060,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := replace.NewStatic(context.Background(), tt.opts, newResolver())
			if err != nil {
				t.Fatalf("NewStatic: %v", err)
			}
			if got := s.Dest.String(); got != tt.wantDest {
				t.Errorf("Dest = %s, want %s", got, tt.wantDest)
			}
			if s.LocalPort != tt.wantLocal {
				t.Errorf("LocalPort = %d, want %d", s.LocalPort, tt.wantLocal)
			}
		})
	}
}

func TestNewStaticLocalAddress(t *testing.T) {
	t.Parallel()

	s, err := replace.NewStatic(context.Background(), replace.Options{ToURI: "bob@10.0.0.5"}, newResolver())
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}

	tokens := s.Tokens()
	if tokens["From-IP"] != "10.9.8.7" || tokens["From-Host"] != "10.9.8.7" {
		t.Errorf("From-IP/From-Host = %q/%q, want local address", tokens["From-IP"], tokens["From-Host"])
	}

	s.BindPort(40000)
	tokens = s.Tokens()
	if tokens["Local-Port"] != "40000" || tokens["From-Address"] != "10.9.8.7:40000" {
		t.Errorf("after BindPort: Local-Port=%q From-Address=%q", tokens["Local-Port"], tokens["From-Address"])
	}
}

func TestNewStaticErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    replace.Options
		wantErr error
	}{
		{name: "missing touri", opts: replace.Options{}, wantErr: replace.ErrConfig},
		{name: "malformed touri", opts: replace.Options{ToURI: "bob@host:99999"}, wantErr: replace.ErrConfig},
		{name: "malformed fromuri", opts: replace.Options{ToURI: "bob@10.0.0.5", FromURI: "a@"}, wantErr: replace.ErrConfig},
		{name: "unknown from host", opts: replace.Options{ToURI: "bob@10.0.0.5", FromURI: "nope.test"}, wantErr: replace.ErrResolution},
		{name: "empty answer", opts: replace.Options{ToURI: "bob@10.0.0.5", FromURI: "empty.example.test"}, wantErr: replace.ErrResolution},
		{name: "IPv6 answer", opts: replace.Options{ToURI: "bob@10.0.0.5", FromURI: "v6.example.test"}, wantErr: replace.ErrResolution},
		{name: "unknown destination", opts: replace.Options{ToURI: "bob@nope.test", FromURI: "10.1.1.1"}, wantErr: replace.ErrResolution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := replace.NewStatic(context.Background(), tt.opts, newResolver())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewStatic error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// -------------------------------------------------------------------------
// Substitution
// -------------------------------------------------------------------------

func newStatic(t *testing.T) *replace.Static {
	t.Helper()
	s, err := replace.NewStatic(context.Background(), replace.Options{
		ToURI:   "bob@127.0.0.1:5060",
		FromURI: "alice@10.1.1.1",
	}, newResolver())
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	return s
}

func TestNewDynamicUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 1000 {
		d := replace.NewDynamic()
		if seen[d.CallID] {
			t.Fatalf("Call-ID %s generated twice", d.CallID)
		}
		seen[d.CallID] = true

		if strings.Contains(d.BranchID, "-") || len(d.BranchID) != 32 {
			t.Errorf("BranchID = %q, want 32 hex chars without separators", d.BranchID)
		}
		if strings.ReplaceAll(d.CallID, "-", "") != d.BranchID {
			t.Errorf("BranchID %q does not derive from Call-ID %q", d.BranchID, d.CallID)
		}
	}
}

func TestApply(t *testing.T) {
	t.Parallel()

	s := newStatic(t)
	dyn := replace.Dynamic{CallID: "c0ffee-01", BranchID: "c0ffee01"}

	tests := []struct {
		name     string
		template string
		cseq     int
		want     string
	}{
		{
			name:     "static and dynamic tokens",
			template: "INVITE sip:<To> SIP/2.0\r\nFrom: <sip:<From-User>@<From-IP>>\r\nCall-ID: <Call-ID>\r\nCSeq: <CSeq> INVITE\r\n\r\n",
			cseq:     1,
			want:     "INVITE sip:bob@127.0.0.1:5060 SIP/2.0\r\nFrom: <sip:alice@10.1.1.1>\r\nCall-ID: c0ffee-01\r\nCSeq: 1 INVITE\r\n\r\n",
		},
		{
			name:     "repeated tokens across lines",
			template: "<To-Host>\r\n<To-Host>:<To-Port>",
			cseq:     2,
			want:     "127.0.0.1\r\n127.0.0.1:5060\r\n\r\n",
		},
		{
			name:     "branch cookie with filler",
			template: "Via: SIP/2.0/UDP <From-IP>;branch=z9hG4bK-garbage-<Branch-ID>;rport\r\n",
			cseq:     1,
			want:     "Via: SIP/2.0/UDP 10.1.1.1;branch=z9hG4bKc0ffee01;rport\r\n\r\n",
		},
		{
			name:     "branch cookie does not span lines",
			template: "Via: x;branch=z9hG4bKabc\r\nX-Branch: <Branch-ID>",
			cseq:     1,
			want:     "Via: x;branch=z9hG4bKabc\r\nX-Branch: c0ffee01\r\n\r\n",
		},
		{
			name:     "unknown tokens survive",
			template: "<Nope> <CSeq>",
			cseq:     2,
			want:     "<Nope> 2\r\n\r\n",
		},
		{
			name:     "teardown method",
			template: "<Teardown-Method> sip:<To> SIP/2.0",
			cseq:     2,
			want:     "CANCEL sip:bob@127.0.0.1:5060 SIP/2.0\r\n\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := replace.Apply(tt.template, s, dyn, tt.cseq)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Apply mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyContentLength(t *testing.T) {
	t.Parallel()

	s := newStatic(t)

	tests := []struct {
		name     string
		template string
		wantBody string
	}{
		{
			name:     "body ending in CRLF",
			template: "INVITE sip:<To> SIP/2.0\r\nContent-Length: <Content-Length>\r\n\r\nv=0\r\no=- 1 1 IN IP4 <From-IP>\r\n",
			wantBody: "v=0\r\no=- 1 1 IN IP4 10.1.1.1\r\n\r\n",
		},
		{
			// Decoded sections are trimmed, so bodies arrive without their
			// final CRLF and the terminator is appended after the body.
			name:     "trimmed body",
			template: "INVITE sip:<To> SIP/2.0\r\nContent-Length: <Content-Length>\r\n\r\nv=0\r\ns=-",
			wantBody: "v=0\r\ns=-\r\n\r\n",
		},
		{
			name:     "no body",
			template: "OPTIONS sip:<To> SIP/2.0\r\nContent-Length: <Content-Length>",
			wantBody: "",
		},
		{
			name:     "body already terminated",
			template: "INVITE sip:<To> SIP/2.0\r\nContent-Length: <Content-Length>\r\n\r\nv=0\r\n\r\n",
			wantBody: "v=0\r\n\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := replace.Apply(tt.template, s, replace.NewDynamic(), replace.CSeqInit)

			_, body, ok := strings.Cut(got, "\r\n\r\n")
			if !ok {
				t.Fatalf("no blank line in %q", got)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}

			// The declared length matches the bytes actually on the wire.
			want := "Content-Length: " + strconv.Itoa(len(body)) + "\r\n"
			if !strings.Contains(got, want) {
				t.Errorf("payload %q does not declare %q", got, want)
			}
		})
	}
}

func TestContentLength(t *testing.T) {
	t.Parallel()

	if n := replace.ContentLength("INVITE\r\nA: b\r\n\r\nv=0\r\n"); n != 5 {
		t.Errorf("ContentLength = %d, want 5", n)
	}
	if n := replace.ContentLength("INVITE\r\nA: b\r\n"); n != 0 {
		t.Errorf("ContentLength(no blank line) = %d, want 0", n)
	}
}

func TestEnsureTerminator(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"OPTIONS":           "OPTIONS\r\n\r\n",
		"OPTIONS\r\n":       "OPTIONS\r\n\r\n",
		"OPTIONS\r\n\r\n":   "OPTIONS\r\n\r\n",
		"":                  "\r\n\r\n",
		"OPTIONS\r\n\r\nab": "OPTIONS\r\n\r\nab\r\n\r\n",
	}

	for in, want := range tests {
		if got := replace.EnsureTerminator(in); got != want {
			t.Errorf("EnsureTerminator(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestApplyEndToEndTemplate(t *testing.T) {
	t.Parallel()

	s, err := replace.NewStatic(context.Background(), replace.Options{ToURI: "bob@127.0.0.1:5060"}, newResolver())
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}

	dyn := replace.NewDynamic()
	init := replace.Apply("INVITE sip:<To>@<To-Host> SIP/2.0\r\nCall-ID: <Call-ID>", s, dyn, replace.CSeqInit)

	if !strings.Contains(init, "bob@127.0.0.1") {
		t.Errorf("init payload %q lacks recipient", init)
	}
	if !strings.Contains(init, "Call-ID: "+dyn.CallID+"\r\n") {
		t.Errorf("init payload %q lacks Call-ID %s", init, dyn.CallID)
	}
}
