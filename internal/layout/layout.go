// Package layout computes class memory layout and vtable slot
// assignment (C7): field offsets in declaration order with base-class
// fields first, and virtual-method slot numbers inherited from the base
// and extended by new virtual declarations, overridden in place by
// override declarations.
package layout

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/splanck/viper-sub008/internal/types"
)

// vtablePtrSize is the size in bytes of the vtable pointer stored at
// offset 0 of every object, and of one vtable slot.
const vtablePtrSize = 8

// FieldLayout is one field's placement within an object.
type FieldLayout struct {
	Name   string
	Type   *types.Type
	Size   int
	Offset int
}

// ClassLayout is the computed memory shape of one class: a numeric
// class id (stable within one compilation, used by the runtime's class
// table) plus every field (including inherited ones) at its final
// offset, and the total object size.
type ClassLayout struct {
	Name    string
	ClassID int
	Fields  []FieldLayout
	Size    int
}

// FindField looks up a field by case-insensitive name.
func (l ClassLayout) FindField(name string) (FieldLayout, bool) {
	key := strings.ToLower(name)
	for _, f := range l.Fields {
		if strings.ToLower(f.Name) == key {
			return f, true
		}
	}
	return FieldLayout{}, false
}

// VtableSlot is one virtual dispatch slot: the method it dispatches and
// the class whose implementation currently occupies the slot.
type VtableSlot struct {
	MethodName string
	ImplClass  string
	Slot       int
}

// VtableLayout is one class's full vtable: inherited slots first,
// followed by slots the class itself introduces.
type VtableLayout struct {
	ClassName string
	Slots     []VtableSlot
}

// InterfaceValueSize is the ABI size of an interface fat pointer: an
// object pointer and an itable pointer, each machine-word sized.
const InterfaceValueSize = 2 * vtablePtrSize

// InterfaceLayout is one interface's method-slot assignment: each
// method in a stable, deterministic order (spec §4.8's itable).
type InterfaceLayout struct {
	Name       string
	InterfaceID int
	MethodSlots map[string]int // key: lowercase method name
	MethodOrder []string        // lowercase keys in slot order
}

// Computer computes and caches class/vtable layouts across a whole
// compilation's class set, processing base classes before the classes
// that derive from them so a derived layout can always find its base's
// already-computed layout.
type Computer struct {
	classes       map[string]*types.Class // key: lowercase name
	classLayouts  map[string]ClassLayout
	vtableLayouts map[string]VtableLayout
	order         []string // registration order, base before derived
	nextClassID   int

	interfaceLayouts map[string]InterfaceLayout
	nextInterfaceID  int
}

// NewComputer builds a layout computer over a completed class table
// (spec §4.6 pass 1 output); classes must already be fully populated
// (fields, methods, base name) before ComputeAll is called.
func NewComputer(classes map[string]*types.Class) *Computer {
	return &Computer{
		classes:          classes,
		classLayouts:     make(map[string]ClassLayout),
		vtableLayouts:    make(map[string]VtableLayout),
		nextClassID:      1, // 0 is reserved to mean "no base class"
		interfaceLayouts: make(map[string]InterfaceLayout),
		nextInterfaceID:  1,
	}
}

// AssignInterfaceIDs computes an itable layout (stable method-slot
// order) and a numeric id for every interface, keyed the same way
// classes are (spec §4.8 "Itable. Per-(class, interface) table of
// function pointers resolved at runtime"). IDs are assigned in sorted
// name order so they are stable across runs for the same input, the
// same way class ids are.
func (c *Computer) AssignInterfaceIDs(interfaces map[string]*types.Interface) {
	var names []string
	for _, iface := range interfaces {
		names = append(names, iface.Name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})

	for _, name := range names {
		iface := interfaces[strings.ToLower(name)]
		var methodNames []string
		for mname := range iface.Methods {
			methodNames = append(methodNames, mname)
		}
		sort.Strings(methodNames)

		layout := InterfaceLayout{
			Name:        name,
			InterfaceID: c.nextInterfaceID,
			MethodSlots: make(map[string]int),
		}
		c.nextInterfaceID++
		for _, mname := range methodNames {
			layout.MethodSlots[mname] = len(layout.MethodOrder)
			layout.MethodOrder = append(layout.MethodOrder, mname)
		}
		c.interfaceLayouts[strings.ToLower(name)] = layout
	}
}

// InterfaceLayoutOf returns the computed itable layout for an interface
// name.
func (c *Computer) InterfaceLayoutOf(name string) (InterfaceLayout, bool) {
	l, ok := c.interfaceLayouts[strings.ToLower(name)]
	return l, ok
}

// InterfaceMethodSlot returns a method's itable slot number.
func (c *Computer) InterfaceMethodSlot(ifaceName, methodName string) (int, bool) {
	l, ok := c.interfaceLayouts[strings.ToLower(ifaceName)]
	if !ok {
		return 0, false
	}
	slot, ok := l.MethodSlots[strings.ToLower(methodName)]
	return slot, ok
}

// ComputeAll computes every class's layout and vtable in base-before-
// derived order, detecting inheritance cycles.
func (c *Computer) ComputeAll() error {
	order, err := c.topoSort()
	if err != nil {
		return err
	}
	c.order = order
	for _, name := range order {
		c.computeClassLayout(name)
		c.computeVtableLayout(name)
	}
	return nil
}

// topoSort orders class names so every base class precedes its
// derivatives, visiting in a deterministic (sorted) name order so the
// resulting class ids are stable across runs for the same input.
func (c *Computer) topoSort() ([]string, error) {
	var names []string
	for _, cls := range c.classes {
		names = append(names, cls.Name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})

	var sorted []string
	visited := make(map[string]bool)
	visiting := make(map[string]bool)

	var visit func(name string) error
	visit = func(name string) error {
		key := strings.ToLower(name)
		if visited[key] {
			return nil
		}
		if visiting[key] {
			return errors.Errorf("layout: inheritance cycle detected at class %q", name)
		}
		visiting[key] = true

		cls, ok := c.classes[key]
		if ok && cls.BaseName != "" {
			if err := visit(cls.BaseName); err != nil {
				return err
			}
		}
		visiting[key] = false
		visited[key] = true
		sorted = append(sorted, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// RegistrationOrder returns the base-before-derived order ComputeAll
// resolved, for the lowerer's module-init emission.
func (c *Computer) RegistrationOrder() []string { return c.order }

func (c *Computer) computeClassLayout(className string) {
	key := strings.ToLower(className)
	info, ok := c.classes[key]
	if !ok {
		return
	}

	result := ClassLayout{Name: className, ClassID: c.nextClassID}
	c.nextClassID++

	currentOffset := vtablePtrSize

	if info.BaseName != "" {
		if base, ok := c.classLayouts[strings.ToLower(info.BaseName)]; ok {
			result.Fields = append(result.Fields, base.Fields...)
			currentOffset = base.Size
		}
	}

	for _, fieldKey := range info.FieldOrder {
		f := info.Fields[fieldKey]
		size := sizeOf(f.Type)
		if currentOffset%8 != 0 {
			currentOffset = ((currentOffset / 8) + 1) * 8
		}
		result.Fields = append(result.Fields, FieldLayout{
			Name: f.DeclaredName, Type: f.Type, Size: size, Offset: currentOffset,
		})
		currentOffset += size
	}

	if currentOffset%8 != 0 {
		currentOffset = ((currentOffset / 8) + 1) * 8
	}
	if currentOffset < vtablePtrSize {
		currentOffset = vtablePtrSize
	}
	result.Size = currentOffset

	c.classLayouts[key] = result
}

func (c *Computer) computeVtableLayout(className string) {
	key := strings.ToLower(className)
	info, ok := c.classes[key]
	if !ok {
		return
	}

	vt := VtableLayout{ClassName: className}
	if info.BaseName != "" {
		if base, ok := c.vtableLayouts[strings.ToLower(info.BaseName)]; ok {
			vt.Slots = append(vt.Slots, base.Slots...)
		}
	}

	// Iterate method names in sorted order for deterministic slot
	// assignment among sibling new-virtual declarations within one class.
	var methodNames []string
	for name := range info.Methods {
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)

	for _, methodKey := range methodNames {
		for _, m := range info.Methods[methodKey] {
			switch {
			case m.IsOverride:
				for i := range vt.Slots {
					if strings.ToLower(vt.Slots[i].MethodName) == methodKey {
						vt.Slots[i].ImplClass = className
					}
				}
			case m.IsVirtual:
				vt.Slots = append(vt.Slots, VtableSlot{
					MethodName: m.Name,
					ImplClass:  className,
					Slot:       len(vt.Slots),
				})
			}
		}
	}

	c.vtableLayouts[key] = vt
}

// ClassLayoutOf returns the computed layout for a class name.
func (c *Computer) ClassLayoutOf(className string) (ClassLayout, bool) {
	l, ok := c.classLayouts[strings.ToLower(className)]
	return l, ok
}

// VtableLayoutOf returns the computed vtable for a class name.
func (c *Computer) VtableLayoutOf(className string) (VtableLayout, bool) {
	v, ok := c.vtableLayouts[strings.ToLower(className)]
	return v, ok
}

// FieldOffset returns a field's byte offset within its class (including
// inherited fields), or ok=false if the class or field is unknown.
func (c *Computer) FieldOffset(className, fieldName string) (int, bool) {
	l, ok := c.classLayouts[strings.ToLower(className)]
	if !ok {
		return 0, false
	}
	f, ok := l.FindField(fieldName)
	if !ok {
		return 0, false
	}
	return f.Offset, true
}

// VirtualSlot returns a method's vtable slot number, or ok=false if the
// method is not virtual (or the class/method is unknown).
func (c *Computer) VirtualSlot(className, methodName string) (int, bool) {
	v, ok := c.vtableLayouts[strings.ToLower(className)]
	if !ok {
		return 0, false
	}
	key := strings.ToLower(methodName)
	for _, slot := range v.Slots {
		if strings.ToLower(slot.MethodName) == key {
			return slot.Slot, true
		}
	}
	return 0, false
}

// BaseClassID returns the numeric class id of className's base class,
// or 0 if it has none (0 is reserved as "no base").
func (c *Computer) BaseClassID(className string) int {
	info, ok := c.classes[strings.ToLower(className)]
	if !ok || info.BaseName == "" {
		return 0
	}
	base, ok := c.classLayouts[strings.ToLower(info.BaseName)]
	if !ok {
		return 0
	}
	return base.ClassID
}

// sizeOf is the ABI size in bytes of a field's storage slot. Every
// shape other than Bool is machine-word sized in this v0.1 ABI: classes
// and interfaces are reference-sized (a raw pointer, or a fat pointer
// for interfaces, which sizeOf reports as its full two-word size so
// offset arithmetic never straddles a word boundary), optionals are
// tag-plus-payload flattened into one word pair, and arrays/strings are
// heap-allocated and referenced through a single pointer word.
func sizeOf(t *types.Type) int {
	if t == nil {
		return vtablePtrSize
	}
	switch t.Kind {
	case types.KindBool:
		return 1
	case types.KindInterface:
		return InterfaceValueSize
	case types.KindOptional:
		return 2 * vtablePtrSize // [tag:word][payload:word]
	default:
		return vtablePtrSize
	}
}
