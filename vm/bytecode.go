package vm

type (
	// Bytecode is the form of a voice patch executed by the Interpreter.
	Bytecode struct {
		// Opcodes is the bytecode, which is a sequence of opcode bytes, one
		// per enabled unit in the patch, terminated by opEnd.
		Opcodes []byte

		// Operands are the operands of the opcodes. When executing the
		// bytecode, every opcode reads as many operands as its unit type has
		// parameters and advances in the sequence. An operand is the index of
		// a parameter value of the voice.
		Operands []uint16
	}
)

type bytecodeBuilder struct {
	Bytecode
}

func newBytecode(prog *program) *Bytecode {
	b := &bytecodeBuilder{}
	for _, pu := range prog.units {
		b.op(pu.opcode)
		for i := 0; i < pu.numParams; i++ {
			b.operand(pu.firstParam + i)
		}
	}
	b.op(opEnd)
	return &b.Bytecode
}

func (b *bytecodeBuilder) op(opcode byte) {
	b.Opcodes = append(b.Opcodes, opcode)
}

func (b *bytecodeBuilder) operand(operands ...int) {
	for _, v := range operands {
		b.Operands = append(b.Operands, uint16(v))
	}
}
