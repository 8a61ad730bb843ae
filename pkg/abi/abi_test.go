package abi

import (
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/raymyers/lowgen/pkg/ir"
	"github.com/raymyers/lowgen/pkg/vcode"
	"gopkg.in/yaml.v3"
)

// Test conventions: four integer argument registers r0-r3, two integer
// return registers r0-r1, two float registers r16-r17.
func testConv(name string) *Convention {
	return &Convention{
		Name:         name,
		WordBits:     64,
		IntArgRegs:   []vcode.Reg{vcode.Real(0, vcode.ClassInt), vcode.Real(1, vcode.ClassInt), vcode.Real(2, vcode.ClassInt), vcode.Real(3, vcode.ClassInt)},
		FloatArgRegs: []vcode.Reg{vcode.Real(16, vcode.ClassFloat), vcode.Real(17, vcode.ClassFloat)},
		IntRetRegs:   []vcode.Reg{vcode.Real(0, vcode.ClassInt), vcode.Real(1, vcode.ClassInt)},
		FloatRetRegs: []vcode.Reg{vcode.Real(16, vcode.ClassFloat)},
		StackAlign:   8,
	}
}

func init() {
	Register(testConv("t4"))

	dedicated := testConv("t4p")
	dedicated.RetPtrReg = vcode.Real(9, vcode.ClassInt)
	Register(dedicated)

	extending := testConv("t4x")
	extending.ExtendSubword = true
	Register(extending)
}

// TestSpec represents a test case from abi.yaml
type TestSpec struct {
	Name          string     `yaml:"name"`
	Conv          string     `yaml:"conv"`
	Params        []string   `yaml:"params"`
	Results       []string   `yaml:"results"`
	Args          [][]string `yaml:"args"`
	Rets          [][]string `yaml:"rets"`
	RetPtr        string     `yaml:"ret_ptr"`
	StackArgSpace int64      `yaml:"stack_arg_space"`
	StackRetSpace int64      `yaml:"stack_ret_space"`
}

type TestFile struct {
	Tests []TestSpec `yaml:"tests"`
}

func parseParams(t *testing.T, specs []string) []ir.Param {
	t.Helper()
	var out []ir.Param
	for _, s := range specs {
		fields := strings.Fields(s)
		ty, err := ir.ParseType(fields[0])
		if err != nil {
			t.Fatalf("bad type %q: %v", fields[0], err)
		}
		p := ir.Param{Ty: ty}
		if len(fields) > 1 && fields[1] == "sext" {
			p.Signed = true
		}
		out = append(out, p)
	}
	return out
}

func slotStrings(a Arg) []string {
	out := make([]string, len(a.Slots))
	for i, s := range a.Slots {
		out[i] = s.String()
	}
	return out
}

func TestResolveYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/abi.yaml")
	if err != nil {
		t.Fatalf("failed to read abi.yaml: %v", err)
	}

	var testFile TestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse abi.yaml: %v", err)
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			sig := &ir.Sig{
				Conv:    tc.Conv,
				Params:  parseParams(t, tc.Params),
				Results: parseParams(t, tc.Results),
			}
			got, err := Resolve(sig)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}

			if tc.Args != nil {
				if len(got.Args) != len(tc.Args) {
					t.Fatalf("got %d args, want %d", len(got.Args), len(tc.Args))
				}
				for i, want := range tc.Args {
					if gotSlots := slotStrings(got.Args[i]); !reflect.DeepEqual(gotSlots, want) {
						t.Errorf("arg %d slots = %v, want %v", i, gotSlots, want)
					}
				}
			}
			if tc.Rets != nil {
				if len(got.Rets) != len(tc.Rets) {
					t.Fatalf("got %d rets, want %d", len(got.Rets), len(tc.Rets))
				}
				for i, want := range tc.Rets {
					if gotSlots := slotStrings(got.Rets[i]); !reflect.DeepEqual(gotSlots, want) {
						t.Errorf("ret %d slots = %v, want %v", i, gotSlots, want)
					}
				}
			}
			if tc.RetPtr != "" {
				if got.RetPtr == nil {
					t.Fatalf("RetPtr = nil, want %s", tc.RetPtr)
				}
				if got.RetPtr.String() != tc.RetPtr {
					t.Errorf("RetPtr = %s, want %s", got.RetPtr, tc.RetPtr)
				}
			} else if got.RetPtr != nil {
				t.Errorf("RetPtr = %s, want none", got.RetPtr)
			}
			if got.StackArgSpace != tc.StackArgSpace {
				t.Errorf("StackArgSpace = %d, want %d", got.StackArgSpace, tc.StackArgSpace)
			}
			if got.StackRetSpace != tc.StackRetSpace {
				t.Errorf("StackRetSpace = %d, want %d", got.StackRetSpace, tc.StackRetSpace)
			}
		})
	}
}

func TestResolveUnknownConv(t *testing.T) {
	_, err := Resolve(&ir.Sig{Conv: "nonesuch"})
	if !errors.Is(err, ErrUnknownConv) {
		t.Errorf("err = %v, want ErrUnknownConv", err)
	}
}

// Resolution is a pure function: the same signature always yields the same
// locations.
func TestResolveDeterministic(t *testing.T) {
	sig := &ir.Sig{
		Conv:    "t4",
		Params:  parseParams(t, []string{"i64", "i128", "f64", "i64", "i64"}),
		Results: parseParams(t, []string{"i64", "i64", "i64"}),
	}
	a, err := Resolve(sig)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b, err := Resolve(sig)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("Resolve is not deterministic")
	}
}

func TestInRetArea(t *testing.T) {
	sig := &ir.Sig{
		Conv:    "t4",
		Results: parseParams(t, []string{"i64", "i64", "i64"}),
	}
	got, err := Resolve(sig)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for i, r := range got.Rets {
		if !r.InRetArea() {
			t.Errorf("ret %d should be in the return area", i)
		}
	}

	direct, err := Resolve(&ir.Sig{Conv: "t4", Results: parseParams(t, []string{"i64"})})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if direct.Rets[0].InRetArea() {
		t.Error("single register return should not be in the return area")
	}
}
