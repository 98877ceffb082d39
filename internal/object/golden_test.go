package object

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TestCanonicalEncoding_Golden pins the canonical wire forms. Any diff here
// changes every stored hash, which silently breaks dedup against existing
// databases.
func TestCanonicalEncoding_Golden(t *testing.T) {
	var buf bytes.Buffer
	line := func(label string, payload []byte, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("encode %s: %v", label, err)
		}
		fmt.Fprintf(&buf, "%s: %s\n", label, payload)
	}

	_, intPayload, err := EncodeScalar(Int(42))
	line("int", intPayload, err)

	_, floatPayload, err := EncodeScalar(Float(6.02e22))
	line("float", floatPayload, err)

	_, strPayload, err := EncodeScalar(String("héllo"))
	line("string", strPayload, err)

	line("sequence", EncodeSequencePayload([]ChildRef{
		HashRef("aaa111"), CycleRef(0), HashRef("bbb222"),
	}), nil)

	mapPayload, err := EncodeMappingPayload(map[string]ChildRef{
		"a":          HashRef("aaa111"),
		"\U0001d11e": HashRef("bbb222"),
		"｡":     CycleRef(1),
	})
	line("mapping", mapPayload, err)

	recPayload, err := EncodeRecordPayload("Node", map[string]ChildRef{
		"next": CycleRef(1),
		"val":  HashRef("aaa111"),
	})
	line("record", recPayload, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "canonical_encoding", buf.Bytes())
}
