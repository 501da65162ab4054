// Package schema implements the schema validator: a descriptor pool parsed
// from a file-descriptor-set byte blob, gated by a strict/permissive mode
// switch. In strict mode, absence of the pool makes the validator
// permanently refuse (fail closed); in permissive mode it is a dev-mode
// passthrough.
package schema

import (
	"fmt"
	"os"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Validator holds an optional descriptor pool, the fully-qualified target
// message name, a strict flag, and the diagnostic captured at load time.
type Validator struct {
	files      *protoregistry.Files
	msgName    protoreflect.FullName
	strict     bool
	diagnostic string
}

// New constructs a Validator by attempting to read and parse the
// file-descriptor-set bytes at descriptorPath. A missing, unreadable, or
// malformed file never fails construction: it records a diagnostic and
// leaves the pool absent, deferring the fail-closed decision to
// EnsureReady/Validate per the strict flag.
func New(descriptorPath, messageName string, strict bool) *Validator {
	v := &Validator{
		msgName: protoreflect.FullName(messageName),
		strict:  strict,
	}

	raw, err := os.ReadFile(descriptorPath)
	if err != nil {
		v.diagnostic = fmt.Sprintf("schema: cannot read descriptor set %q: %v", descriptorPath, err)
		return v
	}

	var fdSet descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(raw, &fdSet); err != nil {
		v.diagnostic = fmt.Sprintf("schema: malformed descriptor set %q: %v", descriptorPath, err)
		return v
	}

	files, err := protodesc.NewFiles(&fdSet)
	if err != nil {
		v.diagnostic = fmt.Sprintf("schema: cannot build descriptor pool from %q: %v", descriptorPath, err)
		return v
	}

	v.files = files
	return v
}

// Ready reports whether the pool is loaded, or strict mode is off.
func (v *Validator) Ready() bool {
	return !(v.strict && v.files == nil)
}

// EnsureReady succeeds unless strict mode is on and the pool is absent.
func (v *Validator) EnsureReady() error {
	if !v.Ready() {
		return fmt.Errorf("schema: not ready: %s", v.diagnostic)
	}
	return nil
}

// Validate decodes payload against the configured message name. Behavior
// follows the table in spec.md §4.3:
//
//	pool present            → look up message, decode, error on failure
//	pool absent, strict     → error with the captured diagnostic
//	pool absent, permissive → succeed without inspection
func (v *Validator) Validate(payload []byte) error {
	if v.files == nil {
		if v.strict {
			return fmt.Errorf("schema: fail closed: %s", v.diagnostic)
		}
		return nil
	}

	desc, err := v.files.FindDescriptorByName(v.msgName)
	if err != nil {
		return fmt.Errorf("schema: message %q not found in descriptor pool: %w", v.msgName, err)
	}
	msgDesc, ok := desc.(protoreflect.MessageDescriptor)
	if !ok {
		return fmt.Errorf("schema: %q is not a message descriptor", v.msgName)
	}

	dyn := dynamicpb.NewMessage(msgDesc)
	if err := proto.Unmarshal(payload, dyn); err != nil {
		return fmt.Errorf("schema: decode %q failed: %w", v.msgName, err)
	}
	return nil
}
