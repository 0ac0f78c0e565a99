package classfile

const classMagic = 0xCAFEBABE

// ClassAccessFlags are the access_flags of a ClassFile.
type ClassAccessFlags uint16

const (
	ClassAccPublic     ClassAccessFlags = 0x0001
	ClassAccFinal      ClassAccessFlags = 0x0010
	ClassAccSuper      ClassAccessFlags = 0x0020
	ClassAccInterface  ClassAccessFlags = 0x0200
	ClassAccAbstract   ClassAccessFlags = 0x0400
	ClassAccSynthetic  ClassAccessFlags = 0x1000
	ClassAccAnnotation ClassAccessFlags = 0x2000
	ClassAccEnum       ClassAccessFlags = 0x4000
	ClassAccModule     ClassAccessFlags = 0x8000
)

func (f ClassAccessFlags) IsPublic() bool     { return f&ClassAccPublic != 0 }
func (f ClassAccessFlags) IsFinal() bool      { return f&ClassAccFinal != 0 }
func (f ClassAccessFlags) IsSuper() bool      { return f&ClassAccSuper != 0 }
func (f ClassAccessFlags) IsInterface() bool  { return f&ClassAccInterface != 0 }
func (f ClassAccessFlags) IsAbstract() bool   { return f&ClassAccAbstract != 0 }
func (f ClassAccessFlags) IsSynthetic() bool  { return f&ClassAccSynthetic != 0 }
func (f ClassAccessFlags) IsAnnotation() bool { return f&ClassAccAnnotation != 0 }
func (f ClassAccessFlags) IsEnum() bool       { return f&ClassAccEnum != 0 }
func (f ClassAccessFlags) IsModule() bool     { return f&ClassAccModule != 0 }

// FieldAccessFlags are the access_flags of a field.
type FieldAccessFlags uint16

const (
	FieldAccPublic    FieldAccessFlags = 0x0001
	FieldAccPrivate   FieldAccessFlags = 0x0002
	FieldAccProtected FieldAccessFlags = 0x0004
	FieldAccStatic    FieldAccessFlags = 0x0008
	FieldAccFinal     FieldAccessFlags = 0x0010
	FieldAccVolatile  FieldAccessFlags = 0x0040
	FieldAccTransient FieldAccessFlags = 0x0080
	FieldAccSynthetic FieldAccessFlags = 0x1000
	FieldAccEnum      FieldAccessFlags = 0x4000
)

func (f FieldAccessFlags) IsPublic() bool    { return f&FieldAccPublic != 0 }
func (f FieldAccessFlags) IsPrivate() bool   { return f&FieldAccPrivate != 0 }
func (f FieldAccessFlags) IsProtected() bool { return f&FieldAccProtected != 0 }
func (f FieldAccessFlags) IsStatic() bool    { return f&FieldAccStatic != 0 }
func (f FieldAccessFlags) IsFinal() bool     { return f&FieldAccFinal != 0 }
func (f FieldAccessFlags) IsVolatile() bool  { return f&FieldAccVolatile != 0 }
func (f FieldAccessFlags) IsTransient() bool { return f&FieldAccTransient != 0 }
func (f FieldAccessFlags) IsSynthetic() bool { return f&FieldAccSynthetic != 0 }
func (f FieldAccessFlags) IsEnum() bool      { return f&FieldAccEnum != 0 }

// MethodAccessFlags are the access_flags of a method. Bits 0x0040 and
// 0x0080 mean bridge and varargs here, not volatile and transient.
type MethodAccessFlags uint16

const (
	MethodAccPublic       MethodAccessFlags = 0x0001
	MethodAccPrivate      MethodAccessFlags = 0x0002
	MethodAccProtected    MethodAccessFlags = 0x0004
	MethodAccStatic       MethodAccessFlags = 0x0008
	MethodAccFinal        MethodAccessFlags = 0x0010
	MethodAccSynchronized MethodAccessFlags = 0x0020
	MethodAccBridge       MethodAccessFlags = 0x0040
	MethodAccVarargs      MethodAccessFlags = 0x0080
	MethodAccNative       MethodAccessFlags = 0x0100
	MethodAccAbstract     MethodAccessFlags = 0x0400
	MethodAccStrict       MethodAccessFlags = 0x0800
	MethodAccSynthetic    MethodAccessFlags = 0x1000
)

func (f MethodAccessFlags) IsPublic() bool       { return f&MethodAccPublic != 0 }
func (f MethodAccessFlags) IsPrivate() bool      { return f&MethodAccPrivate != 0 }
func (f MethodAccessFlags) IsProtected() bool    { return f&MethodAccProtected != 0 }
func (f MethodAccessFlags) IsStatic() bool       { return f&MethodAccStatic != 0 }
func (f MethodAccessFlags) IsFinal() bool        { return f&MethodAccFinal != 0 }
func (f MethodAccessFlags) IsSynchronized() bool { return f&MethodAccSynchronized != 0 }
func (f MethodAccessFlags) IsBridge() bool       { return f&MethodAccBridge != 0 }
func (f MethodAccessFlags) IsVarargs() bool      { return f&MethodAccVarargs != 0 }
func (f MethodAccessFlags) IsNative() bool       { return f&MethodAccNative != 0 }
func (f MethodAccessFlags) IsAbstract() bool     { return f&MethodAccAbstract != 0 }
func (f MethodAccessFlags) IsStrict() bool       { return f&MethodAccStrict != 0 }
func (f MethodAccessFlags) IsSynthetic() bool    { return f&MethodAccSynthetic != 0 }

// ClassFile represents a parsed .class file. It is not modified after
// Parse returns.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool *ConstantPool
	AccessFlags  ClassAccessFlags
	// ThisClass and SuperClass are kept verbatim; they are only resolved
	// when ClassName or SuperClassName is called.
	ThisClass  uint16
	SuperClass uint16
	Interfaces []uint16
	Fields     []FieldInfo
	Methods    []MethodInfo
	Attributes []Attribute
}

// ClassName returns the fully qualified name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return cf.ConstantPool.ClassName(cf.ThisClass)
}

// SuperClassName returns the fully qualified name of the super class, or
// "" when SuperClass is 0 (java/lang/Object).
func (cf *ClassFile) SuperClassName() (string, error) {
	if cf.SuperClass == 0 {
		return "", nil
	}
	return cf.ConstantPool.ClassName(cf.SuperClass)
}

// InterfaceNames resolves the direct superinterfaces in declaration order.
func (cf *ClassFile) InterfaceNames() ([]string, error) {
	names := make([]string, len(cf.Interfaces))
	for i, idx := range cf.Interfaces {
		name, err := cf.ConstantPool.ClassName(idx)
		if err != nil {
			return nil, err
		}
		names[i] = name
	}
	return names, nil
}

// FindMethod finds a method by name and descriptor. The first match in
// declaration order wins.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindMethodByName finds a method by name only (first match).
func (cf *ClassFile) FindMethodByName(name string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindField finds a field by name.
func (cf *ClassFile) FindField(name string) *FieldInfo {
	for i := range cf.Fields {
		if cf.Fields[i].Name == name {
			return &cf.Fields[i]
		}
	}
	return nil
}

// BootstrapMethods returns the class-level BootstrapMethods table, or nil.
func (cf *ClassFile) BootstrapMethods() []BootstrapMethod {
	for _, a := range cf.Attributes {
		if bm, ok := a.(*BootstrapMethodsAttribute); ok {
			return bm.Methods
		}
	}
	return nil
}

// MethodInfo represents a method in a class file.
type MethodInfo struct {
	AccessFlags     MethodAccessFlags
	NameIndex       uint16
	DescriptorIndex uint16
	Name            string
	Descriptor      string
	Attributes      []Attribute
	// Code is the method's Code attribute; nil for abstract and native
	// methods.
	Code *CodeAttribute
}

// FieldInfo represents a field in a class file.
type FieldInfo struct {
	AccessFlags     FieldAccessFlags
	NameIndex       uint16
	DescriptorIndex uint16
	Name            string
	Descriptor      string
	Attributes      []Attribute
}

// ConstantValue returns the field's ConstantValue attribute, or nil.
func (f *FieldInfo) ConstantValue() *ConstantValueAttribute {
	for _, a := range f.Attributes {
		if cv, ok := a.(*ConstantValueAttribute); ok {
			return cv
		}
	}
	return nil
}
