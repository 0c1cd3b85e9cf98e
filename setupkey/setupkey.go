// Package setupkey computes the composite key deciding whether two adjacent
// test cases may share a provisioned target.
package setupkey

import (
	"html"
	"strings"

	"github.com/ethereum-optimism/infra/op-cycler/types"
)

// Field positions within a Key. The order is part of the key's identity.
const (
	FieldSetupType = iota
	FieldOverrideSize
	FieldNetworking
	FieldDiskType
	FieldOSDiskType
	FieldLocation
	FieldImageType
	FieldOSType
	FieldStorageAccountType
	FieldBaseImage
	FieldVMGeneration

	numFields
)

var fieldNames = [numFields]string{
	"setupType",
	"overrideSize",
	"networking",
	"diskType",
	"osDiskType",
	"location",
	"imageType",
	"osType",
	"storageAccountType",
	"baseImage",
	"vmGeneration",
}

// Part is one component of a Key. Set distinguishes an absent field from a
// present one, so absent != present-but-empty.
type Part struct {
	Value string
	Set   bool
}

// Key is an ordered tuple, comparable with ==
type Key [numFields]Part

// Compute derives the key for spec. It is pure: the same spec always yields
// an equal key.
func Compute(spec types.TestCaseSpec) Key {
	var k Key
	if spec.SetupType != "" {
		k[FieldSetupType] = part(&spec.SetupType)
	}
	k[FieldOverrideSize] = part(spec.Env.OverrideSize)
	k[FieldNetworking] = part(spec.Env.Networking)
	k[FieldDiskType] = part(spec.Env.DiskType)
	k[FieldOSDiskType] = part(spec.Env.OSDiskType)
	k[FieldLocation] = part(spec.Env.Location)
	k[FieldImageType] = part(spec.Env.ImageType)
	k[FieldOSType] = part(spec.Env.OSType)
	k[FieldStorageAccountType] = part(spec.Env.StorageAccountType)
	k[FieldBaseImage] = part(spec.Env.BaseImage)
	k[FieldVMGeneration] = part(spec.Env.VMGeneration)
	return k
}

// Diff lists the names of the fields that differ between a and b
func Diff(a, b Key) []string {
	var names []string
	for i := range a {
		if a[i] != b[i] {
			names = append(names, fieldNames[i])
		}
	}
	return names
}

// String renders the key for logs, e.g. "setupType=OneVM,osType=Linux".
func (k Key) String() string {
	var sb strings.Builder
	for i, p := range k {
		if !p.Set {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(fieldNames[i])
		sb.WriteByte('=')
		sb.WriteString(p.Value)
	}
	return sb.String()
}

func part(v *string) Part {
	if v == nil {
		return Part{}
	}
	return Part{Value: Normalize(*v), Set: true}
}

const (
	cdataOpen  = "<![CDATA["
	cdataClose = "]]>"
)

// Normalize unwraps a value that arrived in escaped or wrapped textual form.
// One rule is applied to every field: trim whitespace, strip any number of
// nested CDATA wrappers, then unescape HTML entities and trim again.
// Case is preserved.
func Normalize(v string) string {
	v = strings.TrimSpace(v)
	for strings.HasPrefix(v, cdataOpen) && strings.HasSuffix(v, cdataClose) {
		v = strings.TrimSpace(v[len(cdataOpen) : len(v)-len(cdataClose)])
	}
	return strings.TrimSpace(html.UnescapeString(v))
}
