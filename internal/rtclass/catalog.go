// Package rtclass holds the static, build-time descriptor table of
// built-in Viper runtime types (C2 in the design). It is immutable after
// package initialization and may be read concurrently by every
// compilation; nothing here mutates after init().
package rtclass

// Canonical runtime class name constants, ported from the original
// Viper compiler's RuntimeClassNames.hpp so frontends and runtime
// components never spell these out as inline string literals.
const (
	ClassString        = "Viper.String"
	ClassObject         = "Viper.Object"
	ClassStringBuilder  = "Viper.Text.StringBuilder"
	ClassFile           = "Viper.IO.File"
	ClassList           = "Viper.Collections.List"
	ClassMap            = "Viper.Collections.Map"
	ClassMath           = "Viper.Math"
	ClassTerminal       = "Viper.Terminal"
	ClassConvert        = "Viper.Convert"
	ClassRandom         = "Viper.Random"
	ClassEnvironment    = "Viper.Environment"
	ClassDateTime       = "Viper.DateTime"
	ClassGfxWindow      = "Viper.Graphics.Window"
	ClassGfxColor       = "Viper.Graphics.Color"
	ClassClock          = "Viper.Time.Clock"
	ClassStopwatch      = "Viper.Diagnostics.Stopwatch"
	ClassGuid           = "Viper.Text.Guid"

	// ClassConsole is a legacy alias; Console was folded into Terminal.
	ClassConsole = ClassTerminal
)

// Category discriminates a runtime descriptor between a class and an
// interface.
type Category int

const (
	CategoryClass Category = iota
	CategoryInterface
)

// Property describes one runtime-class property surface.
type Property struct {
	Name       string
	Type       string // textual type tag; resolved against internal/types by callers
	ReadOnly   bool
	GetterSym  string // runtime symbol backing the getter
}

// Method describes one runtime-class method surface.
type Method struct {
	Name       string
	ParamTypes []string
	ReturnType string
	Symbol     string // runtime extern symbol, e.g. "rt_substr"
}

// Class is one entry of the runtime class catalog: a built-in type with
// its members and the dotted namespace it lives under.
type Class struct {
	QualifiedName string
	Category      Category
	Namespace     string
	Properties    []Property
	Methods       []Method
}

// ExternProc is a builtin extern procedure name used to seed namespace
// prefixes so that, e.g., "USING Viper.Console" resolves unqualified
// calls like PrintI64.
type ExternProc struct {
	QualifiedName string
	Symbol        string
}

// catalog is the static descriptor list. It never mutates after
// initialization; Catalog returns it by value-semantics slice (callers
// must not mutate the backing array).
var catalog = []Class{
	{
		QualifiedName: ClassString,
		Category:      CategoryClass,
		Namespace:     "Viper",
		Properties: []Property{
			{Name: "Length", Type: "integer", ReadOnly: true, GetterSym: "rt_len"},
		},
		Methods: []Method{
			{Name: "Substring", ParamTypes: []string{"integer", "integer"}, ReturnType: "string", Symbol: "rt_substr"},
			{Name: "Equals", ParamTypes: []string{"string"}, ReturnType: "boolean", Symbol: "rt_str_eq"},
		},
	},
	{
		QualifiedName: ClassObject,
		Category:      CategoryClass,
		Namespace:     "Viper",
	},
	{
		QualifiedName: ClassStringBuilder,
		Category:      CategoryClass,
		Namespace:     "Viper.Text",
		Methods: []Method{
			{Name: "Append", ParamTypes: []string{"string"}, ReturnType: "void", Symbol: "rt_sb_append"},
			{Name: "ToString", ReturnType: "string", Symbol: "rt_sb_to_string"},
		},
	},
	{
		QualifiedName: ClassFile,
		Category:      CategoryClass,
		Namespace:     "Viper.IO",
		Methods: []Method{
			{Name: "ReadLine", ReturnType: "string", Symbol: "rt_file_read_line"},
			{Name: "WriteLine", ParamTypes: []string{"string"}, ReturnType: "void", Symbol: "rt_file_write_line"},
			{Name: "Close", ReturnType: "void", Symbol: "rt_file_close"},
		},
	},
	{
		QualifiedName: ClassList,
		Category:      CategoryClass,
		Namespace:     "Viper.Collections",
		Properties: []Property{
			{Name: "Count", Type: "integer", ReadOnly: true, GetterSym: "rt_arr_i64_len"},
		},
		Methods: []Method{
			{Name: "Add", ParamTypes: []string{"error"}, ReturnType: "void", Symbol: "rt_list_add"},
			{Name: "Get", ParamTypes: []string{"integer"}, ReturnType: "error", Symbol: "rt_list_get"},
		},
	},
	{
		QualifiedName: ClassMap,
		Category:      CategoryClass,
		Namespace:     "Viper.Collections",
		Methods: []Method{
			{Name: "Set", ParamTypes: []string{"string", "error"}, ReturnType: "void", Symbol: "rt_map_set"},
			{Name: "Get", ParamTypes: []string{"string"}, ReturnType: "error", Symbol: "rt_map_get"},
		},
	},
	{
		QualifiedName: ClassMath,
		Category:      CategoryClass,
		Namespace:     "Viper",
		Methods: []Method{
			{Name: "Sqrt", ParamTypes: []string{"real"}, ReturnType: "real", Symbol: "rt_math_sqrt"},
		},
	},
	{
		QualifiedName: ClassTerminal,
		Category:      CategoryClass,
		Namespace:     "Viper",
		Methods: []Method{
			{Name: "Locate", ParamTypes: []string{"integer", "integer"}, ReturnType: "void", Symbol: "rt_term_locate"},
		},
	},
	{
		QualifiedName: ClassConvert,
		Category:      CategoryClass,
		Namespace:     "Viper",
	},
	{
		QualifiedName: ClassRandom,
		Category:      CategoryClass,
		Namespace:     "Viper",
		Methods: []Method{
			{Name: "Seed", ParamTypes: []string{"integer"}, ReturnType: "void", Symbol: "rt_randomize_i64"},
		},
	},
	{
		QualifiedName: ClassEnvironment,
		Category:      CategoryClass,
		Namespace:     "Viper",
	},
	{
		QualifiedName: ClassDateTime,
		Category:      CategoryClass,
		Namespace:     "Viper",
	},
	{
		QualifiedName: ClassGfxWindow,
		Category:      CategoryClass,
		Namespace:     "Viper.Graphics",
	},
	{
		QualifiedName: ClassGfxColor,
		Category:      CategoryClass,
		Namespace:     "Viper.Graphics",
	},
	{
		QualifiedName: ClassClock,
		Category:      CategoryClass,
		Namespace:     "Viper.Time",
	},
	{
		QualifiedName: ClassStopwatch,
		Category:      CategoryClass,
		Namespace:     "Viper.Diagnostics",
	},
	{
		QualifiedName: ClassGuid,
		Category:      CategoryClass,
		Namespace:     "Viper.Text",
	},
}

// builtinExterns seeds namespace prefixes for unqualified builtin calls
// once a matching USING directive is present.
var builtinExterns = []ExternProc{
	{QualifiedName: "Viper.Console.PrintI64", Symbol: "rt_print_i64"},
	{QualifiedName: "Viper.Console.PrintF64", Symbol: "rt_print_f64"},
	{QualifiedName: "Viper.Console.PrintStr", Symbol: "rt_print_str"},
	{QualifiedName: "Viper.Console.PrintBool", Symbol: "rt_print_i1"},
	{QualifiedName: "Viper.Console.ReadLine", Symbol: "rt_input_line"},
}

// Catalog returns the immutable runtime class descriptor table.
func Catalog() []Class { return catalog }

// BuiltinExterns returns the builtin extern procedure list used to seed
// namespace prefixes.
func BuiltinExterns() []ExternProc { return builtinExterns }

// Lookup returns the descriptor for a qualified runtime class name, case
// sensitively (the catalog's own spelling is always canonical; callers
// performing user-facing lookups fold case themselves via
// internal/sem's NamespaceRegistry).
func Lookup(qualifiedName string) (Class, bool) {
	for _, c := range catalog {
		if c.QualifiedName == qualifiedName {
			return c, true
		}
	}
	return Class{}, false
}
