package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	rtmetrics "runtime/metrics"
	"sort"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/dataset"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultMaxOutputBytes = 64 * 1024
	DefaultMaxMemoryBytes = 256 << 20
	defaultCallStackSize  = 200
	defaultRegistrySize   = 1024 * 16
	defaultRegistryMax    = 1024 * 256
	maxRepeatBytes        = 1 << 20

	heapObjectsMetric  = "/memory/classes/heap/objects:bytes"
	memoryPollInterval = 2 * time.Millisecond
)

// removedGlobals reach files, code loading or the collector.
var removedGlobals = []string{
	"dofile", "loadfile", "load", "loadstring", "require", "module",
	"collectgarbage", "getfenv", "setfenv", "newproxy", "_printregs",
}

// ErrTimeout reports a program stopped by the wall-clock limit.
var ErrTimeout = errors.New("execution timed out")

// ErrMemoryLimit reports a program stopped for growing the heap past its budget.
var ErrMemoryLimit = errors.New("memory limit exceeded")

// Sandbox runs untrusted Lua programs against a dataset snapshot. Each run
// gets a fresh interpreter with only the base, table, string and math
// libraries, bounded stacks, a deadline and a heap growth budget.
type Sandbox struct {
	Timeout         time.Duration
	MaxOutputBytes  int
	CallStackSize   int
	RegistryMaxSize int
	// MaxMemoryBytes bounds heap growth while the program runs. The heap is
	// shared by the process, so concurrent runs count against each other.
	MaxMemoryBytes uint64
}

func NewSandbox(timeout time.Duration, maxOutput int) *Sandbox {
	return &Sandbox{Timeout: timeout, MaxOutputBytes: maxOutput}
}

// Run executes code and returns everything it printed. Output produced
// before a failure is returned along with the error.
func (s *Sandbox) Run(ctx context.Context, code string, snap *dataset.Snapshot) (output string, err error) {
	if snap == nil {
		return "", errors.New("no dataset available")
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	memLimit := s.MaxMemoryBytes
	if memLimit == 0 {
		memLimit = DefaultMaxMemoryBytes
	}
	stopWatch := watchMemory(ctx, cancel, memLimit)
	defer stopWatch()

	out := &cappedBuffer{limit: orDefault(s.MaxOutputBytes, DefaultMaxOutputBytes)}
	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       orDefault(s.CallStackSize, defaultCallStackSize),
		RegistrySize:        defaultRegistrySize,
		RegistryMaxSize:     orDefault(s.RegistryMaxSize, defaultRegistryMax),
		MinimizeStackMemory: true,
	})
	defer L.Close()

	defer func() {
		if r := recover(); r != nil {
			output, err = out.String(), fmt.Errorf("interpreter panic: %v", r)
		}
	}()

	openLibs(L)
	installPrint(L, out)
	installHelpers(L, snap)
	L.SetGlobal("df", dataFrame(L, snap))
	L.SetContext(ctx)

	runErr := L.DoString(code)
	stopWatch()
	if errors.Is(context.Cause(ctx), ErrMemoryLimit) {
		return out.String(), fmt.Errorf("%w: heap grew past %d MiB", ErrMemoryLimit, memLimit>>20)
	}
	if runErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out.String(), fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		if ctx.Err() != nil {
			return out.String(), ctx.Err()
		}
		return out.String(), errors.New(luaMessage(runErr))
	}
	return out.String(), nil
}

// watchMemory cancels ctx with ErrMemoryLimit once the heap holds more than
// limit bytes above its level at the start of the run. The returned stop
// function is idempotent and waits for the watcher to exit.
func watchMemory(ctx context.Context, cancel context.CancelCauseFunc, limit uint64) func() {
	samples := []rtmetrics.Sample{{Name: heapObjectsMetric}}
	read := func() uint64 {
		rtmetrics.Read(samples)
		if samples[0].Value.Kind() != rtmetrics.KindUint64 {
			return 0
		}
		return samples[0].Value.Uint64()
	}
	base := read()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(memoryPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if cur := read(); cur > base && cur-base > limit {
					cancel(ErrMemoryLimit)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

func openLibs(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	if str, ok := L.GetGlobal("string").(*lua.LTable); ok {
		str.RawSetString("rep", L.NewFunction(boundedRep))
	}
	if m, ok := L.GetGlobal("math").(*lua.LTable); ok {
		m.RawSetString("randomseed", lua.LNil)
	}
}

// boundedRep is string.rep with a cap on the result size.
func boundedRep(L *lua.LState) int {
	str := L.CheckString(1)
	n := L.CheckInt(2)
	if n <= 0 || str == "" {
		L.Push(lua.LString(""))
		return 1
	}
	if len(str)*n > maxRepeatBytes {
		L.RaiseError("string.rep result exceeds %d bytes", maxRepeatBytes)
		return 0
	}
	L.Push(lua.LString(strings.Repeat(str, n)))
	return 1
}

func installPrint(L *lua.LState, out *cappedBuffer) {
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		out.WriteLine(strings.Join(parts, "\t"))
		return 0
	}))
}

// dataFrame exposes the snapshot as df.columns, df.rows, df.n and
// df.total_rows. Missing values are absent keys in a row.
func dataFrame(L *lua.LState, snap *dataset.Snapshot) *lua.LTable {
	df := L.NewTable()
	columns := L.NewTable()
	rows := L.NewTable()
	for _, c := range snap.Columns() {
		columns.Append(lua.LString(c))
	}
	for _, r := range snap.Sample() {
		row := L.CreateTable(0, len(r))
		for k, v := range r {
			if lv := toLua(v); lv != lua.LNil {
				row.RawSetString(k, lv)
			}
		}
		rows.Append(row)
	}
	df.RawSetString("columns", columns)
	df.RawSetString("rows", rows)
	df.RawSetString("n", lua.LNumber(snap.Len()))
	df.RawSetString("total_rows", lua.LNumber(snap.TotalRows()))
	return df
}

func toLua(v any) lua.LValue {
	switch x := v.(type) {
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case bool:
		return lua.LBool(x)
	default:
		return lua.LNil
	}
}

func installHelpers(L *lua.LState, snap *dataset.Snapshot) {
	values := func(L *lua.LState) []lua.LValue { return argValues(L, snap) }
	stat := func(fn func([]float64) (float64, bool)) lua.LGFunction {
		return func(L *lua.LState) int {
			v, ok := fn(numeric(values(L)))
			if !ok {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(lua.LNumber(v))
			return 1
		}
	}

	helpers := map[string]lua.LGFunction{
		"col": func(L *lua.LState) int {
			t := L.NewTable()
			for _, v := range columnValues(L, snap, L.CheckString(1)) {
				t.Append(v)
			}
			L.Push(t)
			return 1
		},
		"sum": func(L *lua.LState) int {
			L.Push(lua.LNumber(sum(numeric(values(L)))))
			return 1
		},
		"mean":   stat(mean),
		"median": stat(median),
		"stddev": stat(stddev),
		"minimum": stat(func(xs []float64) (float64, bool) {
			return extreme(xs, func(a, b float64) bool { return a < b })
		}),
		"maximum": stat(func(xs []float64) (float64, bool) {
			return extreme(xs, func(a, b float64) bool { return a > b })
		}),
		"count": func(L *lua.LState) int {
			L.Push(lua.LNumber(len(values(L))))
			return 1
		},
		"unique": func(L *lua.LState) int {
			seen := make(map[lua.LValue]bool)
			t := L.NewTable()
			for _, v := range values(L) {
				if !seen[v] {
					seen[v] = true
					t.Append(v)
				}
			}
			L.Push(t)
			return 1
		},
		"round": func(L *lua.LState) int {
			x := float64(L.CheckNumber(1))
			places := L.OptInt(2, 0)
			p := math.Pow(10, float64(places))
			L.Push(lua.LNumber(math.Round(x*p) / p))
			return 1
		},
	}
	names := make([]string, 0, len(helpers))
	for name := range helpers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		L.SetGlobal(name, L.NewFunction(helpers[name]))
	}
}

// argValues accepts either a column name or a Lua array as the first argument.
func argValues(L *lua.LState, snap *dataset.Snapshot) []lua.LValue {
	switch arg := L.CheckAny(1).(type) {
	case lua.LString:
		return columnValues(L, snap, string(arg))
	case *lua.LTable:
		out := make([]lua.LValue, 0, arg.Len())
		for i := 1; i <= arg.Len(); i++ {
			if v := arg.RawGetInt(i); v != lua.LNil {
				out = append(out, v)
			}
		}
		return out
	default:
		L.ArgError(1, "expected a column name or a table")
		return nil
	}
}

func columnValues(L *lua.LState, snap *dataset.Snapshot, column string) []lua.LValue {
	if !snap.HasColumn(column) {
		L.RaiseError("unknown column %q", column)
		return nil
	}
	raw := snap.Values(column)
	out := make([]lua.LValue, 0, len(raw))
	for _, v := range raw {
		if lv := toLua(v); lv != lua.LNil {
			out = append(out, lv)
		}
	}
	return out
}

func numeric(values []lua.LValue) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if n, ok := v.(lua.LNumber); ok {
			out = append(out, float64(n))
		}
	}
	return out
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}

// luaMessage keeps the first line of an interpreter error.
func luaMessage(err error) string {
	var apiErr *lua.ApiError
	msg := err.Error()
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		msg = apiErr.Object.String()
	}
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimSpace(msg)
}

// cappedBuffer collects printed lines up to limit bytes.
type cappedBuffer struct {
	sb        strings.Builder
	limit     int
	truncated bool
}

func (b *cappedBuffer) WriteLine(line string) {
	if b.truncated {
		return
	}
	if b.sb.Len()+len(line)+1 > b.limit {
		remaining := b.limit - b.sb.Len()
		if remaining > 0 {
			b.sb.WriteString(line[:min(remaining, len(line))])
		}
		b.truncated = true
		return
	}
	b.sb.WriteString(line)
	b.sb.WriteByte('\n')
}

func (b *cappedBuffer) String() string {
	out := strings.TrimRight(b.sb.String(), "\n")
	if b.truncated {
		out += "\n... output truncated"
	}
	return out
}
