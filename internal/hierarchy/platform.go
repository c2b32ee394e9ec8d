package hierarchy

import (
	"errors"
	"fmt"
	"sync"
)

type builtin struct {
	super      string
	iface      bool
	interfaces []string
}

const (
	serializable = "java/io/Serializable"
	comparable   = "java/lang/Comparable"
	charSequence = "java/lang/CharSequence"
	cloneable    = "java/lang/Cloneable"
	iterable     = "java/lang/Iterable"
	collection   = "java/util/Collection"
	list         = "java/util/List"
	set          = "java/util/Set"
	mapType      = "java/util/Map"
	randomAccess = "java/util/RandomAccess"
	closeable    = "java/io/Closeable"
	flushable    = "java/io/Flushable"
	appendable   = "java/lang/Appendable"
)

// platformTypes covers the core library types that show up most in frame
// merges: boxes, strings, throwables and the common collections.
var platformTypes = map[string]builtin{
	"java/lang/String":                          {Object, false, []string{serializable, comparable, charSequence, "java/lang/constant/Constable", "java/lang/constant/ConstantDesc"}},
	"java/lang/Number":                          {Object, false, []string{serializable}},
	"java/lang/Boolean":                         {Object, false, []string{serializable, comparable}},
	"java/lang/Character":                       {Object, false, []string{serializable, comparable}},
	"java/lang/Byte":                            {"java/lang/Number", false, []string{comparable}},
	"java/lang/Short":                           {"java/lang/Number", false, []string{comparable}},
	"java/lang/Integer":                         {"java/lang/Number", false, []string{comparable}},
	"java/lang/Long":                            {"java/lang/Number", false, []string{comparable}},
	"java/lang/Float":                           {"java/lang/Number", false, []string{comparable}},
	"java/lang/Double":                          {"java/lang/Number", false, []string{comparable}},
	"java/math/BigInteger":                      {"java/lang/Number", false, []string{comparable}},
	"java/math/BigDecimal":                      {"java/lang/Number", false, []string{comparable}},
	"java/lang/Void":                            {Object, false, nil},
	"java/lang/Class":                           {Object, false, []string{serializable, "java/lang/reflect/GenericDeclaration", "java/lang/reflect/Type", "java/lang/reflect/AnnotatedElement"}},
	"java/lang/Enum":                            {Object, false, []string{comparable, serializable}},
	"java/lang/Record":                          {Object, false, nil},
	"java/lang/Thread":                          {Object, false, []string{"java/lang/Runnable"}},
	"java/lang/Math":                            {Object, false, nil},
	"java/lang/System":                          {Object, false, nil},
	"java/lang/AbstractStringBuilder":           {Object, false, []string{appendable, charSequence}},
	"java/lang/StringBuilder":                   {"java/lang/AbstractStringBuilder", false, []string{serializable, comparable, charSequence}},
	"java/lang/StringBuffer":                    {"java/lang/AbstractStringBuilder", false, []string{serializable, comparable, charSequence}},
	"java/lang/Throwable":                       {Object, false, []string{serializable}},
	"java/lang/Exception":                       {"java/lang/Throwable", false, nil},
	"java/lang/Error":                           {"java/lang/Throwable", false, nil},
	"java/lang/RuntimeException":                {"java/lang/Exception", false, nil},
	"java/lang/IllegalArgumentException":        {"java/lang/RuntimeException", false, nil},
	"java/lang/IllegalStateException":           {"java/lang/RuntimeException", false, nil},
	"java/lang/NullPointerException":            {"java/lang/RuntimeException", false, nil},
	"java/lang/ClassCastException":              {"java/lang/RuntimeException", false, nil},
	"java/lang/ArithmeticException":             {"java/lang/RuntimeException", false, nil},
	"java/lang/IndexOutOfBoundsException":       {"java/lang/RuntimeException", false, nil},
	"java/lang/ArrayIndexOutOfBoundsException":  {"java/lang/IndexOutOfBoundsException", false, nil},
	"java/lang/StringIndexOutOfBoundsException": {"java/lang/IndexOutOfBoundsException", false, nil},
	"java/lang/NumberFormatException":           {"java/lang/IllegalArgumentException", false, nil},
	"java/lang/UnsupportedOperationException":   {"java/lang/RuntimeException", false, nil},
	"java/lang/ReflectiveOperationException":    {"java/lang/Exception", false, nil},
	"java/lang/ClassNotFoundException":          {"java/lang/ReflectiveOperationException", false, nil},
	"java/lang/NoSuchMethodException":           {"java/lang/ReflectiveOperationException", false, nil},
	"java/lang/NoSuchFieldException":            {"java/lang/ReflectiveOperationException", false, nil},
	"java/lang/InterruptedException":            {"java/lang/Exception", false, nil},
	"java/lang/CloneNotSupportedException":      {"java/lang/Exception", false, nil},
	"java/lang/LinkageError":                    {"java/lang/Error", false, nil},
	"java/lang/AssertionError":                  {"java/lang/Error", false, nil},
	"java/lang/VirtualMachineError":             {"java/lang/Error", false, nil},
	"java/lang/OutOfMemoryError":                {"java/lang/VirtualMachineError", false, nil},
	"java/lang/StackOverflowError":              {"java/lang/VirtualMachineError", false, nil},
	"java/io/IOException":                       {"java/lang/Exception", false, nil},
	"java/io/FileNotFoundException":             {"java/io/IOException", false, nil},
	"java/io/UncheckedIOException":              {"java/lang/RuntimeException", false, nil},
	"java/util/NoSuchElementException":          {"java/lang/RuntimeException", false, nil},
	"java/util/ConcurrentModificationException": {"java/lang/RuntimeException", false, nil},

	"java/io/Serializable":                 {"", true, nil},
	"java/lang/Comparable":                 {"", true, nil},
	"java/lang/CharSequence":               {"", true, nil},
	"java/lang/Runnable":                   {"", true, nil},
	"java/lang/Iterable":                   {"", true, nil},
	"java/lang/AutoCloseable":              {"", true, nil},
	"java/lang/Appendable":                 {"", true, nil},
	"java/lang/Cloneable":                  {"", true, nil},
	"java/lang/constant/Constable":         {"", true, nil},
	"java/lang/constant/ConstantDesc":      {"", true, nil},
	"java/lang/reflect/Type":               {"", true, nil},
	"java/lang/reflect/AnnotatedElement":   {"", true, nil},
	"java/lang/reflect/GenericDeclaration": {"", true, []string{"java/lang/reflect/AnnotatedElement"}},
	"java/io/Closeable":                    {"", true, []string{"java/lang/AutoCloseable"}},
	"java/io/Flushable":                    {"", true, nil},
	"java/util/Collection":                 {"", true, []string{iterable}},
	"java/util/List":                       {"", true, []string{collection}},
	"java/util/Set":                        {"", true, []string{collection}},
	"java/util/SortedSet":                  {"", true, []string{set}},
	"java/util/Queue":                      {"", true, []string{collection}},
	"java/util/Deque":                      {"", true, []string{"java/util/Queue"}},
	"java/util/Map":                        {"", true, nil},
	"java/util/SortedMap":                  {"", true, []string{mapType}},
	"java/util/NavigableMap":               {"", true, []string{"java/util/SortedMap"}},
	"java/util/Iterator":                   {"", true, nil},
	"java/util/RandomAccess":               {"", true, nil},
	"java/util/Comparator":                 {"", true, nil},
	"java/util/concurrent/Callable":        {"", true, nil},
	"java/util/function/Function":          {"", true, nil},
	"java/util/function/BiFunction":        {"", true, nil},
	"java/util/function/Supplier":          {"", true, nil},
	"java/util/function/Consumer":          {"", true, nil},
	"java/util/function/BiConsumer":        {"", true, nil},
	"java/util/function/Predicate":         {"", true, nil},

	"java/util/AbstractCollection":     {Object, false, []string{collection}},
	"java/util/AbstractList":           {"java/util/AbstractCollection", false, []string{list}},
	"java/util/AbstractSequentialList": {"java/util/AbstractList", false, nil},
	"java/util/AbstractSet":            {"java/util/AbstractCollection", false, []string{set}},
	"java/util/AbstractMap":            {Object, false, []string{mapType}},
	"java/util/ArrayList":              {"java/util/AbstractList", false, []string{list, randomAccess, cloneable, serializable}},
	"java/util/LinkedList":             {"java/util/AbstractSequentialList", false, []string{list, "java/util/Deque", cloneable, serializable}},
	"java/util/HashSet":                {"java/util/AbstractSet", false, []string{set, cloneable, serializable}},
	"java/util/LinkedHashSet":          {"java/util/HashSet", false, []string{set, cloneable, serializable}},
	"java/util/HashMap":                {"java/util/AbstractMap", false, []string{mapType, cloneable, serializable}},
	"java/util/LinkedHashMap":          {"java/util/HashMap", false, []string{mapType}},
	"java/util/TreeMap":                {"java/util/AbstractMap", false, []string{"java/util/NavigableMap", cloneable, serializable}},

	"java/io/InputStream":        {Object, false, []string{closeable}},
	"java/io/OutputStream":       {Object, false, []string{closeable, flushable}},
	"java/io/FilterOutputStream": {"java/io/OutputStream", false, nil},
	"java/io/PrintStream":        {"java/io/FilterOutputStream", false, []string{appendable, closeable}},
}

// PlatformProvider resolves core platform types. It consults, in order, a
// built-in table, an optional prebuilt Index, and the classes found on
// Classpath, which is scanned on the first miss.
type PlatformProvider struct {
	Index     *Index
	Classpath []string
	Workers   int

	once    sync.Once
	scanned *Index
	scanErr error
}

func (p *PlatformProvider) Lookup(name string) (TypeInfo, error) {
	if b, ok := platformTypes[name]; ok {
		return TypeInfo{Name: name, Super: b.super, Interface: b.iface, Interfaces: b.interfaces}, nil
	}
	if name == Object {
		return TypeInfo{Name: Object}, nil
	}
	if p.Index != nil {
		if ti, err := p.Index.Lookup(name); err == nil {
			return ti, nil
		}
	}
	if len(p.Classpath) == 0 {
		return TypeInfo{}, fmt.Errorf("%w: %s", ErrUnresolved, name)
	}
	p.once.Do(func() {
		p.scanned, p.scanErr = BuildIndex(p.Classpath, p.Workers)
	})
	if p.scanErr != nil {
		return TypeInfo{}, p.scanErr
	}
	ti, err := p.scanned.Lookup(name)
	if err != nil && !errors.Is(err, ErrUnresolved) {
		return TypeInfo{}, err
	}
	return ti, err
}
