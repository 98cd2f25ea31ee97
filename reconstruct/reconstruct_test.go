package reconstruct_test

import (
	"bytes"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/OperatorFoundation/nahoftu4i/capture"
	"github.com/OperatorFoundation/nahoftu4i/fragment"
	"github.com/OperatorFoundation/nahoftu4i/keys"
	"github.com/OperatorFoundation/nahoftu4i/reconstruct"
)

var errIntegrity = errors.New("integrity check failed")

// countingDecryptor accepts ciphertext only once it has reached want bytes.
type countingDecryptor struct {
	want  int
	calls int
}

func (d *countingDecryptor) Decrypt(key, ciphertext []byte) ([]byte, error) {
	d.calls++
	if len(ciphertext) < d.want {
		return nil, errIntegrity
	}
	return bytes.ToUpper(ciphertext), nil
}

func concatAssembler() reconstruct.Assembler {
	return reconstruct.AssemblerFunc(func(frags []fragment.Fragment) ([]byte, error) {
		var out []byte
		for _, f := range frags {
			out = append(out, f.Identifier...)
		}
		return out, nil
	})
}

func set(version uint64, ids ...string) fragment.Set {
	s := fragment.Set{Version: version}
	for _, id := range ids {
		s.Fragments = append(s.Fragments, fragment.Fragment{Identifier: id})
	}
	return s
}

func TestAttempter_FailureIncrementsAttempts(t *testing.T) {
	dec := &countingDecryptor{want: 4}
	a := reconstruct.NewAttempter(concatAssembler(), dec)

	out := a.Attempt(nil, set(1, "a"))
	if out.Status != reconstruct.Failed {
		t.Fatalf("Status = %v, want failed", out.Status)
	}
	if !errors.Is(out.Err, errIntegrity) {
		t.Errorf("Err = %v, want integrity error", out.Err)
	}

	a.Attempt(nil, set(2, "a", "b"))
	if a.Attempts() != 2 {
		t.Errorf("Attempts() = %d, want 2", a.Attempts())
	}
}

func TestAttempter_UnchangedFailedSetIsRetried(t *testing.T) {
	dec := &countingDecryptor{want: 100}
	a := reconstruct.NewAttempter(concatAssembler(), dec)

	for i := 0; i < 3; i++ {
		if out := a.Attempt(nil, set(7, "a", "b")); out.Status != reconstruct.Failed {
			t.Fatalf("Status = %v, want failed", out.Status)
		}
	}
	if dec.calls != 3 {
		t.Errorf("decrypt calls = %d, want 3", dec.calls)
	}
	if a.Attempts() != 3 {
		t.Errorf("Attempts() = %d, want 3", a.Attempts())
	}
}

func TestAttempter_SuccessIsIdempotent(t *testing.T) {
	dec := &countingDecryptor{want: 2}
	a := reconstruct.NewAttempter(concatAssembler(), dec)

	s := set(3, "ab")
	first := a.Attempt(nil, s)
	second := a.Attempt(nil, s)

	if first.Status != reconstruct.Succeeded {
		t.Fatalf("first Status = %v, want succeeded", first.Status)
	}
	if string(first.Plaintext) != "AB" {
		t.Errorf("Plaintext = %q, want AB", first.Plaintext)
	}
	if second.Status != reconstruct.Skipped {
		t.Errorf("second Status = %v, want skipped", second.Status)
	}
}

func TestAttempter_EmptySetSkipped(t *testing.T) {
	a := reconstruct.NewAttempter(concatAssembler(), &countingDecryptor{})

	if out := a.Attempt(nil, fragment.Set{}); out.Status != reconstruct.Skipped {
		t.Errorf("Status = %v, want skipped", out.Status)
	}
}

func TestAttempter_AssembleError(t *testing.T) {
	failing := reconstruct.AssemblerFunc(func([]fragment.Fragment) ([]byte, error) {
		return nil, errors.New("bad sequence")
	})
	a := reconstruct.NewAttempter(failing, &countingDecryptor{})

	out := a.Attempt(nil, set(1, "a"))
	if !errors.Is(out.Err, reconstruct.ErrAssemble) {
		t.Errorf("Err = %v, want ErrAssemble", out.Err)
	}
	if a.Attempts() != 1 {
		t.Errorf("Attempts() = %d, want 1", a.Attempts())
	}

	a.Reset()
	if a.Attempts() != 0 {
		t.Errorf("Attempts() after Reset = %d, want 0", a.Attempts())
	}
}

func mustPack(t *testing.T, data []byte) []fragment.Fragment {
	t.Helper()
	frags, err := reconstruct.Pack(data, 23)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	return frags
}

func TestPack_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "short", data: []byte("hi")},
		{name: "aligned", data: []byte("0123456789")},
		{name: "binary", data: []byte{0, 1, 2, 250, 251, 252, 253, 254, 255, 0, 0}},
		{name: "over a hundred parts", data: bytes.Repeat([]byte("radio"), 200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frags := mustPack(t, tt.data)
			for _, f := range frags {
				if _, err := (fragment.PackedParser{}).Parse(f.Identifier, f.Locator, f.Power); err != nil {
					t.Fatalf("packed fragment %s rejected by parser: %v", f, err)
				}
			}

			got, err := reconstruct.PackedAssembler{}.Assemble(frags)
			if err != nil {
				t.Fatalf("Assemble() error = %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("Assemble() = %v, want %v", got, tt.data)
			}
		})
	}
}

func TestPack_TooLarge(t *testing.T) {
	_, err := reconstruct.Pack(make([]byte, reconstruct.MaxPackedSize+1), 23)
	if !errors.Is(err, reconstruct.ErrTooLarge) {
		t.Errorf("Pack() error = %v, want ErrTooLarge", err)
	}

	frags, err := reconstruct.Pack(make([]byte, reconstruct.MaxPackedSize), 23)
	if err != nil {
		t.Fatalf("Pack() at the limit error = %v", err)
	}
	got, err := reconstruct.PackedAssembler{}.Assemble(frags)
	if err != nil || len(got) != reconstruct.MaxPackedSize {
		t.Errorf("Assemble() = %d bytes, %v; want %d bytes", len(got), err, reconstruct.MaxPackedSize)
	}
}

func TestPackedAssembler_AnyOrder(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	frags := mustPack(t, data)

	reversed := slices.Clone(frags)
	slices.Reverse(reversed)

	rotated := append(slices.Clone(frags[3:]), frags[:3]...)

	for name, order := range map[string][]fragment.Fragment{"reversed": reversed, "rotated": rotated} {
		t.Run(name, func(t *testing.T) {
			got, err := reconstruct.PackedAssembler{}.Assemble(order)
			if err != nil {
				t.Fatalf("Assemble() error = %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("Assemble() = %q, want %q", got, data)
			}
		})
	}
}

func TestPackedAssembler_Errors(t *testing.T) {
	frags := mustPack(t, bytes.Repeat([]byte("x"), 40))

	conflict := slices.Clone(frags)
	conflict = append(conflict, fragment.Fragment{Identifier: "ZZZZZZ", Locator: frags[1].Locator, Power: 23})

	tests := []struct {
		name  string
		frags []fragment.Fragment
	}{
		{name: "trailing parts missing", frags: frags[:len(frags)-2]},
		{name: "gap in the middle", frags: append(slices.Clone(frags[:2]), frags[3:]...)},
		{name: "first part missing", frags: frags[1:]},
		{name: "conflicting part", frags: conflict},
		{name: "bad locator", frags: []fragment.Fragment{{Identifier: "MZXW6Y", Locator: "??", Power: 23}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reconstruct.PackedAssembler{}.Assemble(tt.frags)
			if !errors.Is(err, reconstruct.ErrAssemble) {
				t.Errorf("Assemble() error = %v, want ErrAssemble", err)
			}
		})
	}
}

// A sender loops over its parts. One part is lost on the first pass and
// only arrives on the second, after every other part has been held.
func TestPackedPipeline_RetransmittedPartResolves(t *testing.T) {
	receiverKeys, err := keys.Generate()
	if err != nil {
		t.Fatal(err)
	}
	sender, err := keys.Generate()
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("meet at the usual place at nine")
	sealed, err := keys.Seal(msg, &receiverKeys.Public, &sender.Private)
	if err != nil {
		t.Fatal(err)
	}
	frags := mustPack(t, sealed)

	acc := fragment.NewAccumulator(fragment.PackedParser{})
	attempter := reconstruct.NewAttempter(reconstruct.PackedAssembler{}, keys.NewBoxDecryptor(receiverKeys.Private))
	senderKey := sender.Public[:]

	const lost = 2
	var order []fragment.Fragment
	for i, f := range frags {
		if i != lost {
			order = append(order, f)
		}
	}
	order = append(order, frags...)

	for _, f := range order {
		acc.Ingest(capture.Batch{
			ReceivedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
			Results:    []capture.DecodeResult{{Identifier: f.Identifier, Locator: f.Locator, Power: f.Power}},
		})
		if acc.Len() < 8 {
			continue
		}
		out := attempter.Attempt(senderKey, acc.Current())
		if out.Status == reconstruct.Succeeded {
			if !bytes.Equal(out.Plaintext, msg) {
				t.Fatalf("Plaintext = %q, want %q", out.Plaintext, msg)
			}
			if acc.Len() != len(frags) {
				t.Errorf("resolved with %d fragments, want %d", acc.Len(), len(frags))
			}
			return
		}
	}
	t.Fatalf("never resolved: %d of %d fragments held after %d attempts", acc.Len(), len(frags), attempter.Attempts())
}
