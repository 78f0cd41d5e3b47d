package model

// Descriptor describes how an Element's textual rule values translate to
// typed control values. Filled in by the Binder from MixerIO's reported
// element type, once per element, on discovery.
type Descriptor interface {
	isDescriptor()
}

// IntDescriptor describes a ranged integer control.
type IntDescriptor struct {
	Min, Max, Step int64
}

func (IntDescriptor) isDescriptor() {}

// EnumDescriptor describes an enumerated-selector control.
type EnumDescriptor struct {
	Names []string
}

func (EnumDescriptor) isDescriptor() {}

// BoolDescriptor describes a boolean switch control.
type BoolDescriptor struct{}

func (BoolDescriptor) isDescriptor() {}
