package dataset

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferType(t *testing.T) {
	cases := []struct {
		name   string
		sample []Row
		want   string
	}{
		{"null then number", []Row{{"a": nil}, {"a": 5.0}}, Quantitative},
		{"string", []Row{{"a": "x"}}, Nominal},
		{"empty sample", nil, Nominal},
		{"all null", []Row{{"a": nil}, {"a": nil}}, Nominal},
		{"missing key", []Row{{"b": 1.0}, {"a": "z"}}, Nominal},
		{"first non-null wins", []Row{{"a": "x"}, {"a": 3.0}}, Nominal},
		{"int counts as number", []Row{{"a": 7}}, Quantitative},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, InferType(tc.sample, "a"))
		})
	}
}

func TestReadCSVParsesValues(t *testing.T) {
	in := "mpg,horsepower,name\n18,130,chevrolet\n,165,buick\n15,NA,plymouth\n"
	snap, err := ReadCSV(strings.NewReader(in), LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"mpg", "horsepower", "name"}, snap.Columns())
	assert.Equal(t, 3, snap.TotalRows())
	rows := snap.Sample()
	require.Len(t, rows, 3)
	assert.Equal(t, 18.0, rows[0]["mpg"])
	assert.Equal(t, "chevrolet", rows[0]["name"])
	assert.Nil(t, rows[1]["mpg"])
	assert.Nil(t, rows[2]["horsepower"])
	assert.Equal(t, Quantitative, InferType(rows, "mpg"))
	assert.Equal(t, Nominal, InferType(rows, "name"))
}

func TestReadCSVSamplesBoundedAndOrdered(t *testing.T) {
	var b strings.Builder
	b.WriteString("id\n")
	for i := 0; i < 500; i++ {
		b.WriteString(strconv.Itoa(i))
		b.WriteByte('\n')
	}
	snap, err := ReadCSV(strings.NewReader(b.String()), LoadOptions{
		SampleSize: 50,
		Rand:       rand.New(rand.NewPCG(1, 2)),
	})
	require.NoError(t, err)
	assert.Equal(t, 500, snap.TotalRows())
	require.Equal(t, 50, snap.Len())

	prev := -1.0
	for _, r := range snap.Sample() {
		v := r["id"].(float64)
		assert.Greater(t, v, prev)
		prev = v
	}
}

func TestReadCSVHeaderNormalisation(t *testing.T) {
	snap, err := ReadCSV(strings.NewReader("\ufeffa,a,,a.1,a\n1,2,3,4,5\n"), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a.1", "Unnamed: 2", "a.1.1", "a.2"}, snap.Columns())
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), LoadOptions{})
	assert.ErrorIs(t, err, ErrEmptyCSV)

	_, err = ReadCSV(strings.NewReader("a,b\n1,2,3\n"), LoadOptions{})
	assert.Error(t, err)
}

func TestNewSnapshotRejectsUnknownColumns(t *testing.T) {
	_, err := NewSnapshot([]string{"a"}, []Row{{"b": 1.0}}, 1)
	assert.Error(t, err)

	_, err = NewSnapshot(nil, nil, 0)
	assert.Error(t, err)
}

func TestSnapshotAccessorsReturnCopies(t *testing.T) {
	snap, err := NewSnapshot([]string{"a"}, []Row{{"a": 1}}, 1)
	require.NoError(t, err)

	cols := snap.Columns()
	cols[0] = "mutated"
	rows := snap.Sample()
	rows[0]["a"] = "mutated"

	assert.Equal(t, []string{"a"}, snap.Columns())
	assert.Equal(t, 1.0, snap.Sample()[0]["a"])
	assert.Equal(t, []any{1.0}, snap.Values("a"))
}

func TestStoreSwapsSnapshots(t *testing.T) {
	store := NewStore()
	assert.Nil(t, store.Current())

	first, err := NewSnapshot([]string{"a"}, nil, 0)
	require.NoError(t, err)
	second, err := NewSnapshot([]string{"b"}, nil, 0)
	require.NoError(t, err)

	assert.Nil(t, store.Replace(first))
	held := store.Current()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Current().Columns()
		}()
	}
	assert.Same(t, first, store.Replace(second))
	wg.Wait()

	assert.Equal(t, []string{"a"}, held.Columns())
	assert.Equal(t, []string{"b"}, store.Current().Columns())
}
