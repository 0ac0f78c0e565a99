package vm

import (
	"bytes"
	"testing"

	"github.com/daimatz/runevm/pkg/classfile"
	"github.com/daimatz/runevm/pkg/classfile/classfiletest"
	"github.com/daimatz/runevm/pkg/errors"
)

const (
	accPublic    = 0x0001
	accStatic    = 0x0008
	accFinal     = 0x0010
	accInterface = 0x0200
	accAbstract  = 0x0400

	printStream = "java/io/PrintStream"
	systemOut   = "Ljava/io/PrintStream;"
)

// newTestVM returns a VM that loads the given classes from memory and
// writes standard output to the returned buffer.
func newTestVM(t *testing.T, classes ...*classfiletest.Builder) (*VM, *bytes.Buffer) {
	t.Helper()
	loader := NewMapClassLoader(nil)
	for _, b := range classes {
		data := b.Bytes()
		cf, err := classfile.Parse(data)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		name, err := cf.ClassName()
		if err != nil {
			t.Fatalf("class name: %v", err)
		}
		loader.Add(name, data)
	}
	var out bytes.Buffer
	v := NewVM(loader)
	v.Stdout = &out
	v.Stderr = &out
	return v, &out
}

func invokeInt(t *testing.T, v *VM, class, name, desc string, args ...Value) int32 {
	t.Helper()
	ret, ok, err := v.Invoke(class, name, desc, args...)
	if err != nil {
		t.Fatalf("Invoke %s.%s: %v", class, name, err)
	}
	if !ok || ret.Type != TypeInt {
		t.Fatalf("Invoke %s.%s returned %s, want int", class, name, ret)
	}
	return ret.Int
}

func invokeString(t *testing.T, v *VM, class, name string) string {
	t.Helper()
	ret, ok, err := v.Invoke(class, name, "()Ljava/lang/String;")
	if err != nil {
		t.Fatalf("Invoke %s.%s: %v", class, name, err)
	}
	s, isString := ret.Ref.(string)
	if !ok || !isString {
		t.Fatalf("Invoke %s.%s returned %s, want a string", class, name, ret)
	}
	return s
}

// objectInit adds a constructor that only calls super().
func objectInit(b *classfiletest.Builder, super string) {
	superInit := b.Methodref(super, "<init>", "()V")
	b.AddMethod(accPublic, "<init>", "()V", b.Code(1, 1, classfiletest.Ops(
		classfile.OpAload0,
		classfile.OpInvokespecial, superInit,
		classfile.OpReturn,
	), nil))
}

func TestRecursion(t *testing.T) {
	b := classfiletest.New("Fact", "java/lang/Object")
	self := b.Methodref("Fact", "fact", "(I)I")
	//  0: iload_0
	//  1: iconst_1
	//  2: if_icmpgt +5 -> 7
	//  5: iconst_1
	//  6: ireturn
	//  7: iload_0
	//  8: iload_0
	//  9: iconst_1
	// 10: isub
	// 11: invokestatic fact
	// 14: imul
	// 15: ireturn
	b.AddMethod(accPublic|accStatic, "fact", "(I)I", b.Code(3, 1, classfiletest.Ops(
		classfile.OpIload0,
		classfile.OpIconst1,
		classfile.OpIfIcmpgt, int16(5),
		classfile.OpIconst1,
		classfile.OpIreturn,
		classfile.OpIload0,
		classfile.OpIload0,
		classfile.OpIconst1,
		classfile.OpIsub,
		classfile.OpInvokestatic, self,
		classfile.OpImul,
		classfile.OpIreturn,
	), nil))
	v, _ := newTestVM(t, b)

	tests := []struct{ n, want int32 }{
		{0, 1}, {1, 1}, {5, 120}, {10, 3628800},
	}
	for _, tt := range tests {
		if got := invokeInt(t, v, "Fact", "fact", "(I)I", IntValue(tt.n)); got != tt.want {
			t.Errorf("fact(%d): got %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestLongArguments(t *testing.T) {
	b := classfiletest.New("Longs", "java/lang/Object")
	// static long sub(int a, long b, int c) { return b - a - c; }
	b.AddMethod(accPublic|accStatic, "sub", "(IJI)J", b.Code(4, 4, classfiletest.Ops(
		classfile.OpLload1,
		classfile.OpIload0,
		classfile.OpI2l,
		classfile.OpLsub,
		classfile.OpIload3,
		classfile.OpI2l,
		classfile.OpLsub,
		classfile.OpLreturn,
	), nil))
	sub := b.Methodref("Longs", "sub", "(IJI)J")
	b.AddMethod(accPublic|accStatic, "run", "()J", b.Code(4, 0, classfiletest.Ops(
		classfile.OpIconst1,
		classfile.OpLconst1,
		classfile.OpIconst2,
		classfile.OpInvokestatic, sub,
		classfile.OpLreturn,
	), nil))
	v, _ := newTestVM(t, b)

	ret, _, err := v.Invoke("Longs", "run", "()J")
	if err != nil {
		t.Fatal(err)
	}
	if ret.Long != -2 {
		t.Errorf("got %d, want -2", ret.Long)
	}
}

func TestExceptions(t *testing.T) {
	b := classfiletest.New("Catch", "java/lang/Object")
	arith := b.Class("java/lang/ArithmeticException")
	runtimeExc := b.Class("java/lang/RuntimeException")

	// static int local() { try { return 1 / 0; } catch (ArithmeticException e) { return -1; } }
	b.AddMethod(accPublic|accStatic, "local", "()I", b.Code(2, 0, classfiletest.Ops(
		classfile.OpIconst1,
		classfile.OpIconst0,
		classfile.OpIdiv,
		classfile.OpIreturn,
		classfile.OpPop,
		classfile.OpIconstM1,
		classfile.OpIreturn,
	), []classfiletest.Handler{{StartPC: 0, EndPC: 4, HandlerPC: 4, CatchType: arith}}))

	// static int div() { return 1 / 0; }
	b.AddMethod(accPublic|accStatic, "div", "()I", b.Code(2, 0, classfiletest.Ops(
		classfile.OpIconst1,
		classfile.OpIconst0,
		classfile.OpIdiv,
		classfile.OpIreturn,
	), nil))

	// static String caller() {
	//     try { div(); return "none"; } catch (RuntimeException e) { return e.getMessage(); }
	// }
	//
	//  0: invokestatic div
	//  3: pop
	//  4: ldc_w "none"
	//  7: areturn
	//  8: astore_0 (handler for RuntimeException over 0..3)
	//  9: aload_0
	// 10: invokevirtual getMessage
	// 13: areturn
	div := b.Methodref("Catch", "div", "()I")
	none := b.String("none")
	getMessage := b.Methodref("java/lang/RuntimeException", "getMessage", "()Ljava/lang/String;")
	b.AddMethod(accPublic|accStatic, "caller", "()Ljava/lang/String;", b.Code(1, 1, classfiletest.Ops(
		classfile.OpInvokestatic, div,
		classfile.OpPop,
		classfile.OpLdcW, none,
		classfile.OpAreturn,
		classfile.OpAstore0,
		classfile.OpAload0,
		classfile.OpInvokevirtual, getMessage,
		classfile.OpAreturn,
	), []classfiletest.Handler{{StartPC: 0, EndPC: 3, HandlerPC: 8, CatchType: runtimeExc}}))

	// static int catchAll() { try { throw null; } catch (Throwable t) { return 7; } }
	b.AddMethod(accPublic|accStatic, "catchAll", "()I", b.Code(1, 0, classfiletest.Ops(
		classfile.OpAconstNull,
		classfile.OpAthrow,
		classfile.OpPop,
		classfile.OpBipush, 7,
		classfile.OpIreturn,
	), []classfiletest.Handler{{StartPC: 0, EndPC: 2, HandlerPC: 2, CatchType: 0}}))

	v, _ := newTestVM(t, b)

	t.Run("caught in the same method", func(t *testing.T) {
		if got := invokeInt(t, v, "Catch", "local", "()I"); got != -1 {
			t.Errorf("got %d, want -1", got)
		}
	})

	t.Run("caught by a superclass in the caller", func(t *testing.T) {
		if got := invokeString(t, v, "Catch", "caller"); got != "/ by zero" {
			t.Errorf("got %q, want %q", got, "/ by zero")
		}
	})

	t.Run("catch all", func(t *testing.T) {
		if got := invokeInt(t, v, "Catch", "catchAll", "()I"); got != 7 {
			t.Errorf("got %d, want 7", got)
		}
	})

	t.Run("uncaught", func(t *testing.T) {
		_, _, err := v.Invoke("Catch", "div", "()I")
		exc := javaException(t, err, ArithmeticException)
		if got := exc.Error(); got != "JavaException: java/lang/ArithmeticException: / by zero" {
			t.Errorf("Error(): got %q", got)
		}
	})
}

func TestUserException(t *testing.T) {
	exc := classfiletest.New("MyError", "java/lang/RuntimeException")
	superInit := exc.Methodref("java/lang/RuntimeException", "<init>", "(Ljava/lang/String;)V")
	exc.AddMethod(accPublic, "<init>", "(Ljava/lang/String;)V", exc.Code(2, 2, classfiletest.Ops(
		classfile.OpAload0,
		classfile.OpAload1,
		classfile.OpInvokespecial, superInit,
		classfile.OpReturn,
	), nil))

	b := classfiletest.New("Thrower", "java/lang/Object")
	myError := b.Class("MyError")
	boom := b.String("boom")
	ctor := b.Methodref("MyError", "<init>", "(Ljava/lang/String;)V")
	getMessage := b.Methodref("MyError", "getMessage", "()Ljava/lang/String;")
	//  0: new MyError
	//  3: dup
	//  4: ldc_w "boom"
	//  7: invokespecial MyError.<init>
	// 10: athrow
	// 11: astore_0 (handler for Exception over 0..11)
	// 12: aload_0
	// 13: invokevirtual getMessage
	// 16: areturn
	b.AddMethod(accPublic|accStatic, "run", "()Ljava/lang/String;", b.Code(3, 1, classfiletest.Ops(
		classfile.OpNew, myError,
		classfile.OpDup,
		classfile.OpLdcW, boom,
		classfile.OpInvokespecial, ctor,
		classfile.OpAthrow,
		classfile.OpAstore0,
		classfile.OpAload0,
		classfile.OpInvokevirtual, getMessage,
		classfile.OpAreturn,
	), []classfiletest.Handler{{StartPC: 0, EndPC: 11, HandlerPC: 11, CatchType: b.Class("java/lang/Exception")}}))

	v, _ := newTestVM(t, exc, b)
	if got := invokeString(t, v, "Thrower", "run"); got != "boom" {
		t.Errorf("got %q, want %q", got, "boom")
	}
}

func TestVirtualDispatch(t *testing.T) {
	pet := classfiletest.New("Pet", "java/lang/Object")
	pet.Flags = accPublic | accInterface | accAbstract
	pet.AddMethod(accPublic|accAbstract, "legs", "()I")

	animal := classfiletest.New("Animal", "java/lang/Object")
	objectInit(animal, "java/lang/Object")
	animal.AddMethod(accPublic, "sound", "()I", animal.Code(1, 1, classfiletest.Ops(classfile.OpIconst1, classfile.OpIreturn), nil))

	dog := classfiletest.New("Dog", "Animal")
	dog.AddInterface("Pet")
	objectInit(dog, "Animal")
	dog.AddMethod(accPublic, "sound", "()I", dog.Code(1, 1, classfiletest.Ops(classfile.OpIconst2, classfile.OpIreturn), nil))
	dog.AddMethod(accPublic, "legs", "()I", dog.Code(1, 1, classfiletest.Ops(classfile.OpIconst4, classfile.OpIreturn), nil))

	b := classfiletest.New("Zoo", "java/lang/Object")
	dogClass := b.Class("Dog")
	dogInit := b.Methodref("Dog", "<init>", "()V")
	newDog := classfiletest.Ops(classfile.OpNew, dogClass, classfile.OpDup, classfile.OpInvokespecial, dogInit)

	b.AddMethod(accPublic|accStatic, "sound", "()I", b.Code(2, 0, classfiletest.Ops(
		newDog,
		classfile.OpInvokevirtual, b.Methodref("Animal", "sound", "()I"),
		classfile.OpIreturn,
	), nil))
	b.AddMethod(accPublic|accStatic, "legs", "()I", b.Code(2, 0, classfiletest.Ops(
		newDog,
		classfile.OpInvokeinterface, b.InterfaceMethodref("Pet", "legs", "()I"), 1, 0,
		classfile.OpIreturn,
	), nil))
	b.AddMethod(accPublic|accStatic, "isPet", "()I", b.Code(2, 0, classfiletest.Ops(
		newDog,
		classfile.OpInstanceof, b.Class("Pet"),
		classfile.OpIreturn,
	), nil))
	b.AddMethod(accPublic|accStatic, "isString", "()I", b.Code(2, 0, classfiletest.Ops(
		newDog,
		classfile.OpInstanceof, b.Class("java/lang/String"),
		classfile.OpIreturn,
	), nil))

	v, _ := newTestVM(t, pet, animal, dog, b)

	tests := []struct {
		method string
		want   int32
	}{
		{"sound", 2},
		{"legs", 4},
		{"isPet", 1},
		{"isString", 0},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			if got := invokeInt(t, v, "Zoo", tt.method, "()I"); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInstanceFields(t *testing.T) {
	point := classfiletest.New("Point", "java/lang/Object")
	point.AddField(accPublic, "x", "I")
	point.AddField(accPublic, "y", "I")
	point.AddField(accPublic, "label", "Ljava/lang/String;")

	b := classfiletest.New("Geometry", "java/lang/Object")
	x := b.Fieldref("Point", "x", "I")
	y := b.Fieldref("Point", "y", "I")
	label := b.Fieldref("Point", "label", "Ljava/lang/String;")
	b.AddMethod(accPublic|accStatic, "area", "()I", b.Code(3, 1, classfiletest.Ops(
		classfile.OpNew, b.Class("Point"),
		classfile.OpAstore0,
		classfile.OpAload0, classfile.OpBipush, 3, classfile.OpPutfield, x,
		classfile.OpAload0, classfile.OpBipush, 4, classfile.OpPutfield, y,
		classfile.OpAload0, classfile.OpGetfield, x,
		classfile.OpAload0, classfile.OpGetfield, y,
		classfile.OpImul,
		classfile.OpIreturn,
	), nil))
	b.AddMethod(accPublic|accStatic, "label", "()I", b.Code(2, 0, classfiletest.Ops(
		classfile.OpNew, b.Class("Point"),
		classfile.OpGetfield, label,
		classfile.OpIfnull, int16(5),
		classfile.OpIconst0,
		classfile.OpIreturn,
		classfile.OpIconst1,
		classfile.OpIreturn,
	), nil))
	b.AddMethod(accPublic|accStatic, "npe", "()I", b.Code(1, 0, classfiletest.Ops(
		classfile.OpAconstNull,
		classfile.OpGetfield, x,
		classfile.OpIreturn,
	), nil))

	v, _ := newTestVM(t, point, b)

	if got := invokeInt(t, v, "Geometry", "area", "()I"); got != 12 {
		t.Errorf("area: got %d, want 12", got)
	}
	if got := invokeInt(t, v, "Geometry", "label", "()I"); got != 1 {
		t.Errorf("unset reference field: got %d, want null", got)
	}
	_, _, err := v.Invoke("Geometry", "npe", "()I")
	javaException(t, err, NullPointerException)
}

func TestStatics(t *testing.T) {
	b := classfiletest.New("Counter", "java/lang/Object")
	b.AddField(accStatic, "count", "I")
	b.AddField(accStatic|accFinal, "LIMIT", "I", classfiletest.ConstantValue(b.Integer(42)))
	b.AddField(accStatic|accFinal, "NAME", "Ljava/lang/String;", classfiletest.ConstantValue(b.String("counter")))
	count := b.Fieldref("Counter", "count", "I")

	b.AddMethod(accStatic, "<clinit>", "()V", b.Code(1, 0, classfiletest.Ops(
		classfile.OpIconst5,
		classfile.OpPutstatic, count,
		classfile.OpReturn,
	), nil))
	b.AddMethod(accPublic|accStatic, "next", "()I", b.Code(2, 0, classfiletest.Ops(
		classfile.OpGetstatic, count,
		classfile.OpIconst1,
		classfile.OpIadd,
		classfile.OpDup,
		classfile.OpPutstatic, count,
		classfile.OpIreturn,
	), nil))
	b.AddMethod(accPublic|accStatic, "limit", "()I", b.Code(1, 0, classfiletest.Ops(
		classfile.OpGetstatic, b.Fieldref("Counter", "LIMIT", "I"),
		classfile.OpIreturn,
	), nil))
	b.AddMethod(accPublic|accStatic, "name", "()Ljava/lang/String;", b.Code(1, 0, classfiletest.Ops(
		classfile.OpGetstatic, b.Fieldref("Counter", "NAME", "Ljava/lang/String;"),
		classfile.OpAreturn,
	), nil))
	b.AddMethod(accPublic|accStatic, "missing", "()I", b.Code(1, 0, classfiletest.Ops(
		classfile.OpGetstatic, b.Fieldref("Counter", "nope", "I"),
		classfile.OpIreturn,
	), nil))

	v, _ := newTestVM(t, b)

	if got := invokeInt(t, v, "Counter", "next", "()I"); got != 6 {
		t.Errorf("first next: got %d, want 6", got)
	}
	if got := invokeInt(t, v, "Counter", "next", "()I"); got != 7 {
		t.Errorf("second next: got %d, want 7", got)
	}
	if got := invokeInt(t, v, "Counter", "limit", "()I"); got != 42 {
		t.Errorf("limit: got %d, want 42", got)
	}
	if got := invokeString(t, v, "Counter", "name"); got != "counter" {
		t.Errorf("name: got %q, want %q", got, "counter")
	}
	if _, _, err := v.Invoke("Counter", "missing", "()I"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing field: got %v, want not found", err)
	}
}

func TestPrintln(t *testing.T) {
	b := classfiletest.New("Printer", "java/lang/Object")
	out := b.Fieldref("java/lang/System", "out", systemOut)
	printlnRef := func(desc string) uint16 { return b.Methodref(printStream, "println", desc) }
	b.AddMethod(accPublic|accStatic, "main", "([Ljava/lang/String;)V", b.Code(3, 1, classfiletest.Ops(
		classfile.OpGetstatic, out, classfile.OpBipush, 42, classfile.OpInvokevirtual, printlnRef("(I)V"),
		classfile.OpGetstatic, out, classfile.OpIconst1, classfile.OpInvokevirtual, printlnRef("(Z)V"),
		classfile.OpGetstatic, out, classfile.OpBipush, 65, classfile.OpInvokevirtual, printlnRef("(C)V"),
		classfile.OpGetstatic, out, classfile.OpDconst1, classfile.OpInvokevirtual, printlnRef("(D)V"),
		classfile.OpGetstatic, out, classfile.OpLconst0, classfile.OpInvokevirtual, printlnRef("(J)V"),
		classfile.OpGetstatic, out, classfile.OpAload0, classfile.OpIconst0, classfile.OpAaload,
		classfile.OpInvokevirtual, b.Methodref(printStream, "print", "(Ljava/lang/String;)V"),
		classfile.OpGetstatic, out, classfile.OpInvokevirtual, printlnRef("()V"),
		classfile.OpGetstatic, out, classfile.OpAconstNull, classfile.OpInvokevirtual, printlnRef("(Ljava/lang/Object;)V"),
		classfile.OpReturn,
	), nil))

	v, buf := newTestVM(t, b)
	if err := v.Execute("Printer", "world"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "42\ntrue\nA\n1.0\n0\nworld\nnull\n"
	if buf.String() != want {
		t.Errorf("output:\ngot  %q\nwant %q", buf.String(), want)
	}
}

func TestToStringOverride(t *testing.T) {
	named := classfiletest.New("Named", "java/lang/Object")
	named.AddMethod(accPublic, "toString", "()Ljava/lang/String;", named.Code(1, 1, classfiletest.Ops(
		classfile.OpLdcW, named.String("I am Named"),
		classfile.OpAreturn,
	), nil))

	b := classfiletest.New("Show", "java/lang/Object")
	b.AddMethod(accPublic|accStatic, "main", "([Ljava/lang/String;)V", b.Code(2, 1, classfiletest.Ops(
		classfile.OpGetstatic, b.Fieldref("java/lang/System", "out", systemOut),
		classfile.OpNew, b.Class("Named"),
		classfile.OpInvokevirtual, b.Methodref(printStream, "println", "(Ljava/lang/Object;)V"),
		classfile.OpReturn,
	), nil))

	v, buf := newTestVM(t, named, b)
	if err := v.Execute("Show"); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "I am Named\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestStringConcat(t *testing.T) {
	b := classfiletest.New("Concat", "java/lang/Object")
	bootstrap := b.MethodHandle(classfile.RefInvokeStatic, b.Methodref(
		"java/lang/invoke/StringConcatFactory",
		"makeConcatWithConstants",
		"(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;Ljava/lang/String;[Ljava/lang/Object;)Ljava/lang/invoke/CallSite;",
	))
	recipe := b.String("x=\x01, s=\x01\x02, c=\x01")
	bang := b.String("!")
	b.AddAttribute(classfiletest.BootstrapMethods(classfiletest.BootstrapMethod{
		MethodRef: bootstrap,
		Args:      []uint16{recipe, bang},
	}))
	indy := b.InvokeDynamic(0, "makeConcatWithConstants", "(ILjava/lang/String;C)Ljava/lang/String;")
	b.AddMethod(accPublic|accStatic, "run", "()Ljava/lang/String;", b.Code(3, 0, classfiletest.Ops(
		classfile.OpBipush, -7,
		classfile.OpLdcW, b.String("hi"),
		classfile.OpBipush, int('z'),
		classfile.OpInvokedynamic, indy, uint16(0),
		classfile.OpAreturn,
	), nil))

	v, _ := newTestVM(t, b)
	if got := invokeString(t, v, "Concat", "run"); got != "x=-7, s=hi!, c=z" {
		t.Errorf("got %q", got)
	}
}

func TestBuiltinClasses(t *testing.T) {
	b := classfiletest.New("Builtins", "java/lang/Object")
	sbClass := "java/lang/StringBuilder"
	sb := b.Class(sbClass)
	appendString := b.Methodref(sbClass, "append", "(Ljava/lang/String;)Ljava/lang/StringBuilder;")
	appendInt := b.Methodref(sbClass, "append", "(I)Ljava/lang/StringBuilder;")
	b.AddMethod(accPublic|accStatic, "builder", "()Ljava/lang/String;", b.Code(3, 0, classfiletest.Ops(
		classfile.OpNew, sb,
		classfile.OpDup,
		classfile.OpInvokespecial, b.Methodref(sbClass, "<init>", "()V"),
		classfile.OpLdcW, b.String("n="),
		classfile.OpInvokevirtual, appendString,
		classfile.OpIconst5,
		classfile.OpInvokevirtual, appendInt,
		classfile.OpInvokevirtual, b.Methodref(sbClass, "toString", "()Ljava/lang/String;"),
		classfile.OpAreturn,
	), nil))

	mapClass := "java/util/HashMap"
	valueOf := b.Methodref("java/lang/Integer", "valueOf", "(I)Ljava/lang/Integer;")
	b.AddMethod(accPublic|accStatic, "hashMap", "()Ljava/lang/String;", b.Code(3, 1, classfiletest.Ops(
		classfile.OpNew, b.Class(mapClass),
		classfile.OpDup,
		classfile.OpInvokespecial, b.Methodref(mapClass, "<init>", "()V"),
		classfile.OpAstore0,
		classfile.OpAload0,
		classfile.OpIconst1,
		classfile.OpInvokestatic, valueOf,
		classfile.OpLdcW, b.String("one"),
		classfile.OpInvokevirtual, b.Methodref(mapClass, "put", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;"),
		classfile.OpPop,
		classfile.OpAload0,
		classfile.OpIconst1,
		classfile.OpInvokestatic, valueOf,
		classfile.OpInvokevirtual, b.Methodref(mapClass, "get", "(Ljava/lang/Object;)Ljava/lang/Object;"),
		classfile.OpCheckcast, b.Class("java/lang/String"),
		classfile.OpAreturn,
	), nil))

	b.AddMethod(accPublic|accStatic, "length", "()I", b.Code(1, 0, classfiletest.Ops(
		classfile.OpLdcW, b.String("héllo"),
		classfile.OpInvokevirtual, b.Methodref("java/lang/String", "length", "()I"),
		classfile.OpIreturn,
	), nil))

	b.AddMethod(accPublic|accStatic, "parse", "()I", b.Code(1, 0, classfiletest.Ops(
		classfile.OpLdcW, b.String("-123"),
		classfile.OpInvokestatic, b.Methodref("java/lang/Integer", "parseInt", "(Ljava/lang/String;)I"),
		classfile.OpIreturn,
	), nil))

	b.AddMethod(accPublic|accStatic, "badParse", "()I", b.Code(1, 0, classfiletest.Ops(
		classfile.OpLdcW, b.String("x1"),
		classfile.OpInvokestatic, b.Methodref("java/lang/Integer", "parseInt", "(Ljava/lang/String;)I"),
		classfile.OpIreturn,
	), nil))

	b.AddMethod(accPublic|accStatic, "badCast", "()Ljava/lang/String;", b.Code(1, 0, classfiletest.Ops(
		classfile.OpLdcW, b.String("x"),
		classfile.OpCheckcast, b.Class("java/lang/Integer"),
		classfile.OpAreturn,
	), nil))

	v, _ := newTestVM(t, b)

	if got := invokeString(t, v, "Builtins", "builder"); got != "n=5" {
		t.Errorf("builder: got %q, want %q", got, "n=5")
	}
	if got := invokeString(t, v, "Builtins", "hashMap"); got != "one" {
		t.Errorf("hashMap: got %q, want %q", got, "one")
	}
	if got := invokeInt(t, v, "Builtins", "length", "()I"); got != 5 {
		t.Errorf("length: got %d, want 5", got)
	}
	if got := invokeInt(t, v, "Builtins", "parse", "()I"); got != -123 {
		t.Errorf("parse: got %d, want -123", got)
	}
	_, _, err := v.Invoke("Builtins", "badParse", "()I")
	javaException(t, err, "java/lang/NumberFormatException")
	_, _, err = v.Invoke("Builtins", "badCast", "()Ljava/lang/String;")
	javaException(t, err, ClassCastException)
}

func TestBuiltinReceivers(t *testing.T) {
	myMap := classfiletest.New("MyMap", "java/util/HashMap")
	objectInit(myMap, "java/util/HashMap")

	b := classfiletest.New("Receivers", "java/lang/Object")
	key := b.String("k")
	b.AddMethod(accPublic|accStatic, "subclassPut", "()V", b.Code(3, 0, classfiletest.Ops(
		classfile.OpNew, b.Class("MyMap"),
		classfile.OpDup,
		classfile.OpInvokespecial, b.Methodref("MyMap", "<init>", "()V"),
		classfile.OpLdcW, key,
		classfile.OpLdcW, key,
		classfile.OpInvokevirtual, b.Methodref("MyMap", "put", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;"),
		classfile.OpPop,
		classfile.OpReturn,
	), nil))
	b.AddMethod(accPublic|accStatic, "bareStream", "()V", b.Code(2, 0, classfiletest.Ops(
		classfile.OpNew, b.Class(printStream),
		classfile.OpIconst1,
		classfile.OpInvokevirtual, b.Methodref(printStream, "println", "(I)V"),
		classfile.OpReturn,
	), nil))

	v, _ := newTestVM(t, myMap, b)
	for _, name := range []string{"subclassPut", "bareStream"} {
		t.Run(name, func(t *testing.T) {
			if _, _, err := v.Invoke("Receivers", name, "()V"); !errors.Is(err, errors.ErrUnsupported) {
				t.Errorf("got %v, want unsupported", err)
			}
		})
	}
}

func TestBrokenHierarchy(t *testing.T) {
	child := classfiletest.New("Child", "java/lang/Object")
	child.SuperClass(child.Utf8("Parent"))

	b := classfiletest.New("Checks", "java/lang/Object")
	b.AddMethod(accPublic|accStatic, "check", "()I", b.Code(1, 0, classfiletest.Ops(
		classfile.OpNew, b.Class("Child"),
		classfile.OpInstanceof, b.Class("java/lang/Runnable"),
		classfile.OpIreturn,
	), nil))
	//  0: 1 / 0
	//  3: ireturn
	//  4: handler whose catch type is a Utf8 entry
	b.AddMethod(accPublic|accStatic, "badCatch", "()I", b.Code(2, 0, classfiletest.Ops(
		classfile.OpIconst1,
		classfile.OpIconst0,
		classfile.OpIdiv,
		classfile.OpIreturn,
		classfile.OpPop,
		classfile.OpIconst0,
		classfile.OpIreturn,
	), []classfiletest.Handler{{StartPC: 0, EndPC: 4, HandlerPC: 4, CatchType: b.Utf8("java/lang/ArithmeticException")}}))

	v, _ := newTestVM(t, child, b)

	t.Run("new", func(t *testing.T) {
		if _, _, err := v.Invoke("Checks", "check", "()I"); !errors.Is(err, errors.ErrInvalidIndex) {
			t.Errorf("got %v, want invalid index", err)
		}
	})
	t.Run("instanceof", func(t *testing.T) {
		ok, err := v.InstanceOf(RefValue(NewObject("Child")), "java/lang/Runnable")
		if !errors.Is(err, errors.ErrInvalidIndex) {
			t.Errorf("got %v, %v; want invalid index", ok, err)
		}
	})
	t.Run("catch type", func(t *testing.T) {
		if _, _, err := v.Invoke("Checks", "badCatch", "()I"); !errors.Is(err, errors.ErrInvalidIndex) {
			t.Errorf("got %v, want invalid index", err)
		}
	})
}

func TestRegisterHost(t *testing.T) {
	b := classfiletest.New("Host", "java/lang/Object")
	b.AddMethod(accPublic|accStatic, "run", "()I", b.Code(2, 0, classfiletest.Ops(
		classfile.OpBipush, 20,
		classfile.OpInvokestatic, b.Methodref("Native", "twice", "(I)I"),
		classfile.OpIreturn,
	), nil))

	v, _ := newTestVM(t, b)
	v.RegisterHost("Native", "twice", "(I)I", func(args []Value) (Value, error) {
		return IntValue(args[0].Int * 2), nil
	})
	if got := invokeInt(t, v, "Host", "run", "()I"); got != 40 {
		t.Errorf("got %d, want 40", got)
	}
}

func TestLookupFailures(t *testing.T) {
	b := classfiletest.New("Broken", "java/lang/Object")
	b.AddMethod(accPublic|accStatic, "callMissing", "()V", b.Code(0, 0, classfiletest.Ops(
		classfile.OpInvokestatic, b.Methodref("Nowhere", "foo", "()V"),
		classfile.OpReturn,
	), nil))
	b.AddMethod(accPublic|accStatic, "newMissing", "()V", b.Code(1, 0, classfiletest.Ops(
		classfile.OpNew, b.Class("Nowhere"),
		classfile.OpPop,
		classfile.OpReturn,
	), nil))
	v, _ := newTestVM(t, b)

	tests := []struct {
		name string
		run  func() error
	}{
		{"missing class", func() error { return v.Execute("Nowhere") }},
		{"missing entry point", func() error { return v.Execute("Broken") }},
		{"missing method", func() error { _, _, err := v.Invoke("Broken", "callMissing", "()V"); return err }},
		{"missing class for new", func() error { _, _, err := v.Invoke("Broken", "newMissing", "()V"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, errors.ErrNotFound) {
				t.Errorf("got %v, want not found", err)
			}
		})
	}
}

func TestLimits(t *testing.T) {
	b := classfiletest.New("Loop", "java/lang/Object")
	b.AddMethod(accPublic|accStatic, "spin", "()V", b.Code(0, 0, classfiletest.Ops(
		classfile.OpGoto, int16(0),
	), nil))
	b.AddMethod(accPublic|accStatic, "recurse", "()V", b.Code(0, 0, classfiletest.Ops(
		classfile.OpInvokestatic, b.Methodref("Loop", "recurse", "()V"),
		classfile.OpReturn,
	), nil))

	t.Run("step limit", func(t *testing.T) {
		v, _ := newTestVM(t, b)
		v.MaxSteps = 100
		if _, _, err := v.Invoke("Loop", "spin", "()V"); !errors.Is(err, errors.ErrStepLimit) {
			t.Errorf("got %v, want step limit", err)
		}
	})

	t.Run("frame depth", func(t *testing.T) {
		v, _ := newTestVM(t, b)
		v.MaxFrameDepth = 50
		if _, _, err := v.Invoke("Loop", "recurse", "()V"); !errors.Is(err, errors.ErrStackOverflow) {
			t.Errorf("got %v, want stack overflow", err)
		}
	})
}
