package layout

import (
	"testing"

	"github.com/splanck/viper-sub008/internal/types"
	"github.com/stretchr/testify/require"
)

func classTable(classes ...*types.Class) map[string]*types.Class {
	m := make(map[string]*types.Class)
	for _, c := range classes {
		m[lowerName(c.Name)] = c
	}
	return m
}

func lowerName(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out[i] = b
	}
	return string(out)
}

func TestFieldOffsetsFollowDeclarationOrder(t *testing.T) {
	c := types.NewClassRecord("Point", "")
	c.AddField("x", types.Field{DeclaredName: "X", Type: types.Int64})
	c.AddField("y", types.Field{DeclaredName: "Y", Type: types.Int64})

	comp := NewComputer(classTable(c))
	require.NoError(t, comp.ComputeAll())

	xOff, ok := comp.FieldOffset("Point", "X")
	require.True(t, ok)
	require.Equal(t, 8, xOff) // right after the 8-byte vtable pointer

	yOff, ok := comp.FieldOffset("Point", "Y")
	require.True(t, ok)
	require.Equal(t, 16, yOff)
}

func TestDerivedClassInheritsBaseFieldsFirst(t *testing.T) {
	base := types.NewClassRecord("Animal", "")
	base.AddField("name", types.Field{DeclaredName: "Name", Type: types.String})

	derived := types.NewClassRecord("Dog", "Animal")
	derived.AddField("breed", types.Field{DeclaredName: "Breed", Type: types.String})

	comp := NewComputer(classTable(base, derived))
	require.NoError(t, comp.ComputeAll())

	nameOff, ok := comp.FieldOffset("Dog", "Name")
	require.True(t, ok)
	require.Equal(t, 8, nameOff)

	breedOff, ok := comp.FieldOffset("Dog", "Breed")
	require.True(t, ok)
	require.Equal(t, 16, breedOff)
}

func TestVirtualMethodGetsNewSlot(t *testing.T) {
	base := types.NewClassRecord("Shape", "")
	base.AddMethodOverload("area", &types.Procedure{Name: "Area", IsVirtual: true})

	comp := NewComputer(classTable(base))
	require.NoError(t, comp.ComputeAll())

	slot, ok := comp.VirtualSlot("Shape", "Area")
	require.True(t, ok)
	require.Equal(t, 0, slot)
}

func TestOverrideReusesBaseSlot(t *testing.T) {
	base := types.NewClassRecord("Shape", "")
	base.AddMethodOverload("area", &types.Procedure{Name: "Area", IsVirtual: true})

	derived := types.NewClassRecord("Circle", "Shape")
	derived.AddMethodOverload("area", &types.Procedure{Name: "Area", IsOverride: true})

	comp := NewComputer(classTable(base, derived))
	require.NoError(t, comp.ComputeAll())

	baseSlot, _ := comp.VirtualSlot("Shape", "Area")
	derivedSlot, ok := comp.VirtualSlot("Circle", "Area")
	require.True(t, ok)
	require.Equal(t, baseSlot, derivedSlot)

	vt, ok := comp.VtableLayoutOf("Circle")
	require.True(t, ok)
	require.Equal(t, "Circle", vt.Slots[0].ImplClass)
}

func TestNewVirtualInDerivedClassExtendsVtable(t *testing.T) {
	base := types.NewClassRecord("Shape", "")
	base.AddMethodOverload("area", &types.Procedure{Name: "Area", IsVirtual: true})

	derived := types.NewClassRecord("Circle", "Shape")
	derived.AddMethodOverload("radius", &types.Procedure{Name: "Radius", IsVirtual: true})

	comp := NewComputer(classTable(base, derived))
	require.NoError(t, comp.ComputeAll())

	vt, ok := comp.VtableLayoutOf("Circle")
	require.True(t, ok)
	require.Len(t, vt.Slots, 2)
}

func TestInheritanceCycleDetected(t *testing.T) {
	a := types.NewClassRecord("A", "B")
	b := types.NewClassRecord("B", "A")

	comp := NewComputer(classTable(a, b))
	err := comp.ComputeAll()
	require.Error(t, err)
}

func TestBaseClassIDZeroWhenNoBase(t *testing.T) {
	c := types.NewClassRecord("Root", "")
	comp := NewComputer(classTable(c))
	require.NoError(t, comp.ComputeAll())
	require.Equal(t, 0, comp.BaseClassID("Root"))
}

func TestRegistrationOrderIsBaseBeforeDerived(t *testing.T) {
	base := types.NewClassRecord("Animal", "")
	derived := types.NewClassRecord("Dog", "Animal")

	comp := NewComputer(classTable(derived, base)) // insertion order reversed
	require.NoError(t, comp.ComputeAll())

	order := comp.RegistrationOrder()
	baseIdx, derivedIdx := -1, -1
	for i, name := range order {
		switch name {
		case "Animal":
			baseIdx = i
		case "Dog":
			derivedIdx = i
		}
	}
	require.Less(t, baseIdx, derivedIdx)
}

func TestInterfaceValueSizeIsTwoWords(t *testing.T) {
	require.Equal(t, 16, InterfaceValueSize)
}

func TestAssignInterfaceIDsOrdersSlotsByMethodName(t *testing.T) {
	iface := types.NewInterface("Comparable")
	iface.Methods["compareto"] = []*types.Procedure{{Name: "CompareTo"}}
	iface.Methods["equals"] = []*types.Procedure{{Name: "Equals"}}

	c := NewComputer(nil)
	c.AssignInterfaceIDs(map[string]*types.Interface{"comparable": iface})

	layout, ok := c.InterfaceLayoutOf("Comparable")
	require.True(t, ok)
	require.Equal(t, []string{"compareto", "equals"}, layout.MethodOrder)

	slot, ok := c.InterfaceMethodSlot("Comparable", "Equals")
	require.True(t, ok)
	require.Equal(t, 1, slot)

	slot, ok = c.InterfaceMethodSlot("comparable", "CompareTo")
	require.True(t, ok)
	require.Equal(t, 0, slot)
}

func TestAssignInterfaceIDsAreStableAndSequential(t *testing.T) {
	a := types.NewInterface("Alpha")
	b := types.NewInterface("Beta")

	c := NewComputer(nil)
	c.AssignInterfaceIDs(map[string]*types.Interface{"alpha": a, "beta": b})

	la, ok := c.InterfaceLayoutOf("Alpha")
	require.True(t, ok)
	lb, ok := c.InterfaceLayoutOf("Beta")
	require.True(t, ok)
	require.Less(t, la.InterfaceID, lb.InterfaceID)
}

func TestInterfaceMethodSlotMissingInterfaceReportsFalse(t *testing.T) {
	c := NewComputer(nil)
	_, ok := c.InterfaceMethodSlot("Nope", "Anything")
	require.False(t, ok)
}
