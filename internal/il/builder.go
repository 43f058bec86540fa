package il

import (
	"github.com/pkg/errors"
	"github.com/splanck/viper-sub008/internal/diag"
)

// Builder (IRBuilder) constructs a Function one instruction at a time:
// start the function, create blocks, pick an insertion point, append
// instructions. It enforces the one invariant the lowerer depends on
// throughout — a block, once terminated, accepts no further
// instructions — by returning a constructed error rather than silently
// corrupting the block or panicking mid-construction.
type Builder struct {
	fn      *Function
	blocks  map[string]*Block
	current *Block
}

// NewBuilder starts a fresh function named name with the given
// parameter list and return type. The function has no blocks yet;
// call CreateBlock to add an entry block.
// Function parameters occupy the first len(params) temp ids (%0..%N-1)
// so references to them read the same as any other SSA value; body
// instructions allocate temps starting right after.
func NewBuilder(name string, params []Param, ret Type) *Builder {
	return &Builder{
		fn:     &Function{Name: name, Params: params, Return: ret, nextTmp: len(params)},
		blocks: make(map[string]*Block),
	}
}

// Function returns the function under construction.
func (b *Builder) Function() *Function { return b.fn }

// CreateBlock appends a new block with the given label and parameters
// and returns it without changing the current insertion point.
func (b *Builder) CreateBlock(label string, params ...Param) (*Block, error) {
	if _, exists := b.blocks[label]; exists {
		return nil, errors.Errorf("il: duplicate block label %q", label)
	}
	paramTemps := make([]int, len(params))
	for i := range params {
		paramTemps[i] = b.NextTemp()
	}
	blk := &Block{Label: label, Params: params, ParamTemps: paramTemps}
	b.blocks[label] = blk
	b.fn.Blocks = append(b.fn.Blocks, blk)
	return blk, nil
}

// SetBlock moves the insertion point to blk. Subsequent Emit* calls
// append to blk.
func (b *Builder) SetBlock(blk *Block) { b.current = blk }

// Current returns the block instructions are currently appended to.
func (b *Builder) Current() *Block { return b.current }

// NextTemp reserves and returns the next SSA temp id for this
// function.
func (b *Builder) NextTemp() int {
	id := b.fn.nextTmp
	b.fn.nextTmp++
	return id
}

// emit appends inst to the current block, rejecting any instruction
// after a terminator already closed it.
func (b *Builder) emit(inst Instruction) error {
	if b.current == nil {
		return errors.New("il: no current block set")
	}
	if b.current.Terminated() {
		return errors.Errorf("il: block %q already terminated, cannot append %s", b.current.Label, inst.Op)
	}
	b.current.Instructions = append(b.current.Instructions, inst)
	return nil
}

// EmitAlloca appends an alloca returning a pointer-typed temp.
func (b *Builder) EmitAlloca(elemType Type, loc diag.SourceLoc) (Value, error) {
	id := b.NextTemp()
	if err := b.emit(Instruction{Op: OpAlloca, HasResult: true, Result: id, Type: Ptr, Operands: nil, Loc: loc}); err != nil {
		return Value{}, err
	}
	_ = elemType // recorded for future debug-info use; alloca itself is opaquely ptr-typed
	return TempVal(id), nil
}

// EmitLoad appends a load of type t from addr.
func (b *Builder) EmitLoad(addr Value, t Type, loc diag.SourceLoc) (Value, error) {
	id := b.NextTemp()
	if err := b.emit(Instruction{Op: OpLoad, HasResult: true, Result: id, Type: t, Operands: []Value{addr}, Loc: loc}); err != nil {
		return Value{}, err
	}
	return TempVal(id), nil
}

// EmitStore appends a store of val to addr.
func (b *Builder) EmitStore(addr, val Value, loc diag.SourceLoc) error {
	return b.emit(Instruction{Op: OpStore, Operands: []Value{addr, val}, Loc: loc})
}

// EmitGEP appends a field/element-offset computation over base.
func (b *Builder) EmitGEP(base Value, offset int64, loc diag.SourceLoc) (Value, error) {
	id := b.NextTemp()
	if err := b.emit(Instruction{Op: OpGEP, HasResult: true, Result: id, Type: Ptr, Operands: []Value{base, ConstInt(offset)}, Loc: loc}); err != nil {
		return Value{}, err
	}
	return TempVal(id), nil
}

// EmitBinary appends an overflow-checked or floating binary op
// returning a temp of type resultType.
func (b *Builder) EmitBinary(op Opcode, lhs, rhs Value, resultType Type, loc diag.SourceLoc) (Value, error) {
	id := b.NextTemp()
	if err := b.emit(Instruction{Op: op, HasResult: true, Result: id, Type: resultType, Operands: []Value{lhs, rhs}, Loc: loc}); err != nil {
		return Value{}, err
	}
	return TempVal(id), nil
}

// EmitCmp appends an icmp/fcmp with the given predicate, returning i1.
func (b *Builder) EmitCmp(op Opcode, pred CmpPredicate, lhs, rhs Value, loc diag.SourceLoc) (Value, error) {
	id := b.NextTemp()
	if err := b.emit(Instruction{Op: op, HasResult: true, Result: id, Type: I1, Predicate: pred, Operands: []Value{lhs, rhs}, Loc: loc}); err != nil {
		return Value{}, err
	}
	return TempVal(id), nil
}

// EmitUnary appends not/neg/fneg/sitofp.
func (b *Builder) EmitUnary(op Opcode, operand Value, resultType Type, loc diag.SourceLoc) (Value, error) {
	id := b.NextTemp()
	if err := b.emit(Instruction{Op: op, HasResult: true, Result: id, Type: resultType, Operands: []Value{operand}, Loc: loc}); err != nil {
		return Value{}, err
	}
	return TempVal(id), nil
}

// EmitCall appends a direct call to callee, returning a temp of type
// resultType. Pass resultType == Void for a call with no result.
func (b *Builder) EmitCall(callee string, args []Value, resultType Type, loc diag.SourceLoc) (Value, error) {
	if resultType.Kind == KindVoid {
		return Value{}, b.emit(Instruction{Op: OpCall, Type: resultType, Operands: args, Callee: callee, Loc: loc})
	}
	id := b.NextTemp()
	if err := b.emit(Instruction{Op: OpCall, HasResult: true, Result: id, Type: resultType, Operands: args, Callee: callee, Loc: loc}); err != nil {
		return Value{}, err
	}
	return TempVal(id), nil
}

// EmitCallIndirect appends a vtable/interface-dispatched call through
// a function-pointer operand (the callee pointer is operands[0]).
func (b *Builder) EmitCallIndirect(fnPtr Value, args []Value, resultType Type, loc diag.SourceLoc) (Value, error) {
	operands := append([]Value{fnPtr}, args...)
	if resultType.Kind == KindVoid {
		return Value{}, b.emit(Instruction{Op: OpCallIndirect, Type: resultType, Operands: operands, Loc: loc})
	}
	id := b.NextTemp()
	if err := b.emit(Instruction{Op: OpCallIndirect, HasResult: true, Result: id, Type: resultType, Operands: operands, Loc: loc}); err != nil {
		return Value{}, err
	}
	return TempVal(id), nil
}

// EmitBr appends an unconditional branch to target, passing args to
// satisfy its block parameters.
func (b *Builder) EmitBr(target string, args []Value, loc diag.SourceLoc) error {
	return b.emit(Instruction{Op: OpBr, Targets: []string{target}, TargetArgs: [][]Value{args}, Loc: loc})
}

// EmitCBr appends a conditional branch: cond selects thenTarget (true)
// or elseTarget (false), each with its own block-parameter arguments.
func (b *Builder) EmitCBr(cond Value, thenTarget string, thenArgs []Value, elseTarget string, elseArgs []Value, loc diag.SourceLoc) error {
	return b.emit(Instruction{
		Op:         OpCBr,
		Operands:   []Value{cond},
		Targets:    []string{thenTarget, elseTarget},
		TargetArgs: [][]Value{thenArgs, elseArgs},
		Loc:        loc,
	})
}

// EmitRet appends a value-returning return.
func (b *Builder) EmitRet(val Value, loc diag.SourceLoc) error {
	return b.emit(Instruction{Op: OpRet, Operands: []Value{val}, Loc: loc})
}

// EmitRetVoid appends a void return.
func (b *Builder) EmitRetVoid(loc diag.SourceLoc) error {
	return b.emit(Instruction{Op: OpRetVoid, Loc: loc})
}

// EmitEHPush appends a push of handlerBlock onto the per-function
// exception-handler stack.
func (b *Builder) EmitEHPush(handlerBlock string, loc diag.SourceLoc) error {
	return b.emit(Instruction{Op: OpEHPush, Targets: []string{handlerBlock}, Loc: loc})
}

// EmitEHPop appends a pop of the innermost handler.
func (b *Builder) EmitEHPop(loc diag.SourceLoc) error {
	return b.emit(Instruction{Op: OpEHPop, Loc: loc})
}

// EmitEHEntry marks the first instruction of a handler block,
// producing the (err, resumeTok) pair the handler body consumes. Both
// are results of this one instruction (Result/Result2) so the resume
// token has a defining instruction like any other temp.
func (b *Builder) EmitEHEntry(loc diag.SourceLoc) (errVal, resumeTok Value, err error) {
	errID := b.NextTemp()
	tokID := b.NextTemp()
	inst := Instruction{
		Op:         OpEHEntry,
		HasResult:  true,
		Result:     errID,
		HasResult2: true,
		Result2:    tokID,
		Type:       Ptr,
		Loc:        loc,
	}
	if e := b.emit(inst); e != nil {
		return Value{}, Value{}, e
	}
	return TempVal(errID), TempVal(tokID), nil
}

// EmitResumeSame appends a resume that rethrows the pending exception
// identified by tok, continuing the unwind past the current handler.
func (b *Builder) EmitResumeSame(tok Value, loc diag.SourceLoc) error {
	return b.emit(Instruction{Op: OpResumeSame, Operands: []Value{tok}, Loc: loc})
}

// EmitResumeLabel appends a resume that continues execution at a
// specific label (the statement after the protected try body).
func (b *Builder) EmitResumeLabel(tok Value, label string, loc diag.SourceLoc) error {
	return b.emit(Instruction{Op: OpResumeLabel, Operands: []Value{tok}, Targets: []string{label}, Loc: loc})
}
