package classfile

// JVM opcodes.
const (
	NOP             = 0x00
	ACONST_NULL     = 0x01
	ICONST_M1       = 0x02
	ICONST_0        = 0x03
	ICONST_1        = 0x04
	ICONST_2        = 0x05
	ICONST_3        = 0x06
	ICONST_4        = 0x07
	ICONST_5        = 0x08
	LCONST_0        = 0x09
	LCONST_1        = 0x0a
	FCONST_0        = 0x0b
	FCONST_1        = 0x0c
	FCONST_2        = 0x0d
	DCONST_0        = 0x0e
	DCONST_1        = 0x0f
	BIPUSH          = 0x10
	SIPUSH          = 0x11
	LDC             = 0x12
	LDC_W           = 0x13
	LDC2_W          = 0x14
	ILOAD           = 0x15
	LLOAD           = 0x16
	FLOAD           = 0x17
	DLOAD           = 0x18
	ALOAD           = 0x19
	ILOAD_0         = 0x1a
	ALOAD_3         = 0x2d
	IALOAD          = 0x2e
	LALOAD          = 0x2f
	FALOAD          = 0x30
	DALOAD          = 0x31
	AALOAD          = 0x32
	BALOAD          = 0x33
	CALOAD          = 0x34
	SALOAD          = 0x35
	ISTORE          = 0x36
	LSTORE          = 0x37
	FSTORE          = 0x38
	DSTORE          = 0x39
	ASTORE          = 0x3a
	ISTORE_0        = 0x3b
	ASTORE_3        = 0x4e
	IASTORE         = 0x4f
	LASTORE         = 0x50
	FASTORE         = 0x51
	DASTORE         = 0x52
	AASTORE         = 0x53
	BASTORE         = 0x54
	CASTORE         = 0x55
	SASTORE         = 0x56
	POP             = 0x57
	POP2            = 0x58
	DUP             = 0x59
	DUP_X1          = 0x5a
	DUP_X2          = 0x5b
	DUP2            = 0x5c
	DUP2_X1         = 0x5d
	DUP2_X2         = 0x5e
	SWAP            = 0x5f
	IADD            = 0x60
	LADD            = 0x61
	FADD            = 0x62
	DADD            = 0x63
	ISUB            = 0x64
	LSUB            = 0x65
	FSUB            = 0x66
	DSUB            = 0x67
	IMUL            = 0x68
	LMUL            = 0x69
	FMUL            = 0x6a
	DMUL            = 0x6b
	IDIV            = 0x6c
	LDIV            = 0x6d
	FDIV            = 0x6e
	DDIV            = 0x6f
	IREM            = 0x70
	LREM            = 0x71
	FREM            = 0x72
	DREM            = 0x73
	INEG            = 0x74
	LNEG            = 0x75
	FNEG            = 0x76
	DNEG            = 0x77
	ISHL            = 0x78
	LSHL            = 0x79
	ISHR            = 0x7a
	LSHR            = 0x7b
	IUSHR           = 0x7c
	LUSHR           = 0x7d
	IAND            = 0x7e
	LAND            = 0x7f
	IOR             = 0x80
	LOR             = 0x81
	IXOR            = 0x82
	LXOR            = 0x83
	IINC            = 0x84
	I2L             = 0x85
	I2F             = 0x86
	I2D             = 0x87
	L2I             = 0x88
	L2F             = 0x89
	L2D             = 0x8a
	F2I             = 0x8b
	F2L             = 0x8c
	F2D             = 0x8d
	D2I             = 0x8e
	D2L             = 0x8f
	D2F             = 0x90
	I2B             = 0x91
	I2C             = 0x92
	I2S             = 0x93
	LCMP            = 0x94
	FCMPL           = 0x95
	FCMPG           = 0x96
	DCMPL           = 0x97
	DCMPG           = 0x98
	IFEQ            = 0x99
	IFNE            = 0x9a
	IFLT            = 0x9b
	IFGE            = 0x9c
	IFGT            = 0x9d
	IFLE            = 0x9e
	IF_ICMPEQ       = 0x9f
	IF_ICMPNE       = 0xa0
	IF_ICMPLT       = 0xa1
	IF_ICMPGE       = 0xa2
	IF_ICMPGT       = 0xa3
	IF_ICMPLE       = 0xa4
	IF_ACMPEQ       = 0xa5
	IF_ACMPNE       = 0xa6
	GOTO            = 0xa7
	JSR             = 0xa8
	RET             = 0xa9
	TABLESWITCH     = 0xaa
	LOOKUPSWITCH    = 0xab
	IRETURN         = 0xac
	LRETURN         = 0xad
	FRETURN         = 0xae
	DRETURN         = 0xaf
	ARETURN         = 0xb0
	RETURN          = 0xb1
	GETSTATIC       = 0xb2
	PUTSTATIC       = 0xb3
	GETFIELD        = 0xb4
	PUTFIELD        = 0xb5
	INVOKEVIRTUAL   = 0xb6
	INVOKESPECIAL   = 0xb7
	INVOKESTATIC    = 0xb8
	INVOKEINTERFACE = 0xb9
	INVOKEDYNAMIC   = 0xba
	NEW             = 0xbb
	NEWARRAY        = 0xbc
	ANEWARRAY       = 0xbd
	ARRAYLENGTH     = 0xbe
	ATHROW          = 0xbf
	CHECKCAST       = 0xc0
	INSTANCEOF      = 0xc1
	MONITORENTER    = 0xc2
	MONITOREXIT     = 0xc3
	WIDE            = 0xc4
	MULTIANEWARRAY  = 0xc5
	IFNULL          = 0xc6
	IFNONNULL       = 0xc7
	GOTO_W          = 0xc8
	JSR_W           = 0xc9
)

// Method handle reference kinds.
const (
	H_GETFIELD         = 1
	H_GETSTATIC        = 2
	H_PUTFIELD         = 3
	H_PUTSTATIC        = 4
	H_INVOKEVIRTUAL    = 5
	H_INVOKESTATIC     = 6
	H_INVOKESPECIAL    = 7
	H_NEWINVOKESPECIAL = 8
	H_INVOKEINTERFACE  = 9
)

// Primitive array type codes used by NEWARRAY.
const (
	T_BOOLEAN = 4
	T_CHAR    = 5
	T_FLOAT   = 6
	T_DOUBLE  = 7
	T_BYTE    = 8
	T_SHORT   = 9
	T_INT     = 10
	T_LONG    = 11
)

// Access flags.
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020
	AccSynchronized = 0x0020
	AccVolatile     = 0x0040
	AccBridge       = 0x0040
	AccTransient    = 0x0080
	AccVarargs      = 0x0080
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccStrict       = 0x0800
	AccSynthetic    = 0x1000
	AccAnnotation   = 0x2000
	AccEnum         = 0x4000
	AccModule       = 0x8000
)

// opNames maps opcodes to their mnemonics. Shortcut forms (ILOAD_0, ...)
// never appear in a tree; the reader expands them.
var opNames = [256]string{
	NOP: "NOP", ACONST_NULL: "ACONST_NULL",
	ICONST_M1: "ICONST_M1", ICONST_0: "ICONST_0", ICONST_1: "ICONST_1", ICONST_2: "ICONST_2",
	ICONST_3: "ICONST_3", ICONST_4: "ICONST_4", ICONST_5: "ICONST_5",
	LCONST_0: "LCONST_0", LCONST_1: "LCONST_1",
	FCONST_0: "FCONST_0", FCONST_1: "FCONST_1", FCONST_2: "FCONST_2",
	DCONST_0: "DCONST_0", DCONST_1: "DCONST_1",
	BIPUSH: "BIPUSH", SIPUSH: "SIPUSH", LDC: "LDC", LDC_W: "LDC_W", LDC2_W: "LDC2_W",
	ILOAD: "ILOAD", LLOAD: "LLOAD", FLOAD: "FLOAD", DLOAD: "DLOAD", ALOAD: "ALOAD",
	IALOAD: "IALOAD", LALOAD: "LALOAD", FALOAD: "FALOAD", DALOAD: "DALOAD",
	AALOAD: "AALOAD", BALOAD: "BALOAD", CALOAD: "CALOAD", SALOAD: "SALOAD",
	ISTORE: "ISTORE", LSTORE: "LSTORE", FSTORE: "FSTORE", DSTORE: "DSTORE", ASTORE: "ASTORE",
	IASTORE: "IASTORE", LASTORE: "LASTORE", FASTORE: "FASTORE", DASTORE: "DASTORE",
	AASTORE: "AASTORE", BASTORE: "BASTORE", CASTORE: "CASTORE", SASTORE: "SASTORE",
	POP: "POP", POP2: "POP2", DUP: "DUP", DUP_X1: "DUP_X1", DUP_X2: "DUP_X2",
	DUP2: "DUP2", DUP2_X1: "DUP2_X1", DUP2_X2: "DUP2_X2", SWAP: "SWAP",
	IADD: "IADD", LADD: "LADD", FADD: "FADD", DADD: "DADD",
	ISUB: "ISUB", LSUB: "LSUB", FSUB: "FSUB", DSUB: "DSUB",
	IMUL: "IMUL", LMUL: "LMUL", FMUL: "FMUL", DMUL: "DMUL",
	IDIV: "IDIV", LDIV: "LDIV", FDIV: "FDIV", DDIV: "DDIV",
	IREM: "IREM", LREM: "LREM", FREM: "FREM", DREM: "DREM",
	INEG: "INEG", LNEG: "LNEG", FNEG: "FNEG", DNEG: "DNEG",
	ISHL: "ISHL", LSHL: "LSHL", ISHR: "ISHR", LSHR: "LSHR", IUSHR: "IUSHR", LUSHR: "LUSHR",
	IAND: "IAND", LAND: "LAND", IOR: "IOR", LOR: "LOR", IXOR: "IXOR", LXOR: "LXOR",
	IINC: "IINC",
	I2L: "I2L", I2F: "I2F", I2D: "I2D", L2I: "L2I", L2F: "L2F", L2D: "L2D",
	F2I: "F2I", F2L: "F2L", F2D: "F2D", D2I: "D2I", D2L: "D2L", D2F: "D2F",
	I2B: "I2B", I2C: "I2C", I2S: "I2S",
	LCMP: "LCMP", FCMPL: "FCMPL", FCMPG: "FCMPG", DCMPL: "DCMPL", DCMPG: "DCMPG",
	IFEQ: "IFEQ", IFNE: "IFNE", IFLT: "IFLT", IFGE: "IFGE", IFGT: "IFGT", IFLE: "IFLE",
	IF_ICMPEQ: "IF_ICMPEQ", IF_ICMPNE: "IF_ICMPNE", IF_ICMPLT: "IF_ICMPLT",
	IF_ICMPGE: "IF_ICMPGE", IF_ICMPGT: "IF_ICMPGT", IF_ICMPLE: "IF_ICMPLE",
	IF_ACMPEQ: "IF_ACMPEQ", IF_ACMPNE: "IF_ACMPNE",
	GOTO: "GOTO", JSR: "JSR", RET: "RET",
	TABLESWITCH: "TABLESWITCH", LOOKUPSWITCH: "LOOKUPSWITCH",
	IRETURN: "IRETURN", LRETURN: "LRETURN", FRETURN: "FRETURN", DRETURN: "DRETURN",
	ARETURN: "ARETURN", RETURN: "RETURN",
	GETSTATIC: "GETSTATIC", PUTSTATIC: "PUTSTATIC", GETFIELD: "GETFIELD", PUTFIELD: "PUTFIELD",
	INVOKEVIRTUAL: "INVOKEVIRTUAL", INVOKESPECIAL: "INVOKESPECIAL",
	INVOKESTATIC: "INVOKESTATIC", INVOKEINTERFACE: "INVOKEINTERFACE",
	INVOKEDYNAMIC: "INVOKEDYNAMIC",
	NEW: "NEW", NEWARRAY: "NEWARRAY", ANEWARRAY: "ANEWARRAY", ARRAYLENGTH: "ARRAYLENGTH",
	ATHROW: "ATHROW", CHECKCAST: "CHECKCAST", INSTANCEOF: "INSTANCEOF",
	MONITORENTER: "MONITORENTER", MONITOREXIT: "MONITOREXIT",
	WIDE: "WIDE", MULTIANEWARRAY: "MULTIANEWARRAY",
	IFNULL: "IFNULL", IFNONNULL: "IFNONNULL", GOTO_W: "GOTO_W", JSR_W: "JSR_W",
}

// OpName returns the mnemonic for op, or "" if op is not a tree opcode.
func OpName(op int) string {
	if op < 0 || op > 255 {
		return ""
	}
	return opNames[op]
}

// HandleKindNames maps method handle kinds to their H_ mnemonics.
var HandleKindNames = map[int]string{
	H_GETFIELD:         "H_GETFIELD",
	H_GETSTATIC:        "H_GETSTATIC",
	H_PUTFIELD:         "H_PUTFIELD",
	H_PUTSTATIC:        "H_PUTSTATIC",
	H_INVOKEVIRTUAL:    "H_INVOKEVIRTUAL",
	H_INVOKESTATIC:     "H_INVOKESTATIC",
	H_INVOKESPECIAL:    "H_INVOKESPECIAL",
	H_NEWINVOKESPECIAL: "H_NEWINVOKESPECIAL",
	H_INVOKEINTERFACE:  "H_INVOKEINTERFACE",
}

// IsFieldHandle reports whether kind refers to a field rather than a method.
func IsFieldHandle(kind int) bool {
	return kind >= H_GETFIELD && kind <= H_PUTSTATIC
}

// NewArrayTypes maps NEWARRAY type codes to primitive descriptors.
var NewArrayTypes = map[int]string{
	T_BOOLEAN: "Z",
	T_CHAR:    "C",
	T_FLOAT:   "F",
	T_DOUBLE:  "D",
	T_BYTE:    "B",
	T_SHORT:   "S",
	T_INT:     "I",
	T_LONG:    "J",
}
