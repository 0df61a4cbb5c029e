package dedup

import (
	"testing"

	"servicelines-be/pkg/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cls(class, typ string) pipeline.ServiceClass {
	return pipeline.ServiceClass{Category: "C", Class: class, Group: "G", Kltxt: "text " + class, Type: typ}
}

func TestDedupe(t *testing.T) {
	tests := []struct {
		name  string
		in    []pipeline.ServiceClass
		key   KeyFunc
		wantN []string
	}{
		{name: "empty", in: nil, key: ByClass, wantN: []string{}},
		{name: "no duplicates", in: []pipeline.ServiceClass{cls("A", "t"), cls("B", "t")}, key: ByClass, wantN: []string{"A", "B"}},
		{name: "duplicate class keeps first", in: []pipeline.ServiceClass{cls("X", "t1"), cls("Y", "t"), cls("X", "t2")}, key: ByClass, wantN: []string{"X", "Y"}},
		{name: "class and type keeps both", in: []pipeline.ServiceClass{cls("X", "t1"), cls("X", "t2"), cls("X", "t1")}, key: ByClassAndType, wantN: []string{"X", "X"}},
		{name: "nil key defaults to class", in: []pipeline.ServiceClass{cls("X", "t1"), cls("X", "t2")}, key: nil, wantN: []string{"X"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dedupe(tt.in, tt.key)
			classes := make([]string, 0, len(got))
			for _, c := range got {
				classes = append(classes, c.Class)
			}
			assert.Equal(t, tt.wantN, classes)
		})
	}
}

func TestDedupeIdempotentAndUnique(t *testing.T) {
	inputs := [][]pipeline.ServiceClass{
		{cls("A", "1"), cls("A", "1"), cls("B", "2"), cls("A", "3"), cls("C", "1"), cls("B", "9")},
		{cls("Z", "1")},
		{},
	}
	for _, in := range inputs {
		once := Dedupe(in, ByClass)
		twice := Dedupe(once, ByClass)
		assert.Equal(t, once, twice)

		seen := map[string]bool{}
		for _, c := range once {
			assert.False(t, seen[c.Class], "duplicate class %s", c.Class)
			seen[c.Class] = true
		}
	}
}

func TestParseStrategy(t *testing.T) {
	for _, name := range []string{"", "class", "CLASS", "class_type", "record"} {
		fn, err := ParseStrategy(name)
		require.NoError(t, err, name)
		assert.NotNil(t, fn)
	}
	_, err := ParseStrategy("fuzzy")
	assert.Error(t, err)
}
