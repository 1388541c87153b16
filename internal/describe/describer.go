// Package describe classifies records and extracts metadata from their
// packed content.
package describe

import (
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/sha1n/redx-indexer/internal/domain"
)

// Object types assigned by the default describer.
const (
	TypeAvatar          = "common_avatar"
	TypeModel           = "model"
	TypeTooltip         = "common_tooltip"
	TypeFacet           = "facet"
	TypeVirtualKeyboard = "virtual_keyboard"
	TypeUIX             = "uix"
	TypeWorldOrb        = "world_orb"
	TypeMaterial        = "material"
	TypeTexture         = "texture"
	TypeVideo           = "video"
	TypeAudio           = "audio"
	TypeText            = "text"
	TypeBinary          = "binary"
)

// ObjectTypes lists every object type the default describer can assign.
var ObjectTypes = []string{
	TypeAvatar, TypeModel, TypeTooltip, TypeFacet, TypeVirtualKeyboard, TypeUIX, TypeWorldOrb,
	TypeMaterial, TypeTexture, TypeVideo, TypeAudio, TypeText, TypeBinary,
}

// WorldURLTag prefixes the tag through which an object references a world.
const WorldURLTag = "world_url:"

// ErrEmptyContent is returned when there is nothing to describe.
var ErrEmptyContent = errors.New("empty content")

// Describer extracts type information and metadata. Implementations must be
// safe for concurrent use.
type Describer interface {
	// DescribeRecord classifies a record from its metadata alone. An empty
	// ObjectType means the content has to be inspected.
	DescribeRecord(rec domain.Record) domain.Description

	// DescribeObject inspects the packed content of an object record.
	DescribeObject(data []byte) (domain.Description, error)

	// DescribeWorld inspects the packed content of a world record.
	DescribeWorld(data []byte) (domain.Description, error)
}

var tagTypes = map[string]string{
	TypeAvatar:          TypeAvatar,
	TypeTooltip:         TypeTooltip,
	TypeFacet:           TypeFacet,
	TypeVirtualKeyboard: TypeVirtualKeyboard,
	TypeWorldOrb:        TypeWorldOrb,
	"world orb":         TypeWorldOrb,
	"avatar":            TypeAvatar,
}

var extensionTypes = map[string]string{
	".png": TypeTexture, ".jpg": TypeTexture, ".jpeg": TypeTexture, ".webp": TypeTexture,
	".gif": TypeTexture, ".bmp": TypeTexture, ".tga": TypeTexture,
	".wav": TypeAudio, ".ogg": TypeAudio, ".mp3": TypeAudio, ".flac": TypeAudio,
	".mp4": TypeVideo, ".webm": TypeVideo, ".mkv": TypeVideo, ".mov": TypeVideo,
	".txt": TypeText, ".md": TypeText, ".json": TypeText,
	".zip": TypeBinary, ".7z": TypeBinary, ".rar": TypeBinary, ".exe": TypeBinary,
	".fbx": TypeModel, ".obj": TypeModel, ".gltf": TypeModel, ".glb": TypeModel,
}

// Default is the built-in heuristic describer.
type Default struct{}

// New creates the default describer.
func New() *Default {
	return &Default{}
}

// DescribeRecord classifies by tags first, then by asset extension.
func (Default) DescribeRecord(rec domain.Record) domain.Description {
	var d domain.Description
	for _, tag := range rec.Tags {
		if uri, ok := strings.CutPrefix(tag, WorldURLTag); ok && domain.IsRecordURI(uri) {
			d.WorldURI = uri
			d.ObjectType = TypeWorldOrb
			continue
		}
		if t, ok := tagTypes[strings.ToLower(tag)]; ok && d.ObjectType == "" {
			d.ObjectType = t
		}
	}
	if d.ObjectType != "" {
		return d
	}

	if t, ok := extensionTypes[strings.ToLower(path.Ext(rec.AssetURI))]; ok {
		d.ObjectType = t
	}
	return d
}

// DescribeObject classifies sniffed media content. Packed scene data is
// left unclassified.
func (Default) DescribeObject(data []byte) (domain.Description, error) {
	if len(data) == 0 {
		return domain.Description{}, ErrEmptyContent
	}
	contentType := http.DetectContentType(data)
	d := domain.Description{Metadata: contentMetadata(data, contentType)}

	major, _, _ := strings.Cut(contentType, "/")
	switch {
	case major == "image":
		d.ObjectType = TypeTexture
	case major == "audio" || contentType == "application/ogg":
		d.ObjectType = TypeAudio
	case major == "video":
		d.ObjectType = TypeVideo
	case major == "text":
		d.ObjectType = TypeText
	case contentType == "application/zip" || contentType == "application/x-gzip" ||
		contentType == "application/x-rar-compressed" || contentType == "application/x-msdownload":
		d.ObjectType = TypeBinary
	}
	return d, nil
}

// DescribeWorld extracts content metadata of a world.
func (Default) DescribeWorld(data []byte) (domain.Description, error) {
	if len(data) == 0 {
		return domain.Description{}, ErrEmptyContent
	}
	return domain.Description{Metadata: contentMetadata(data, http.DetectContentType(data))}, nil
}

func contentMetadata(data []byte, contentType string) map[string]string {
	return map[string]string{
		"contentType": contentType,
		"contentSize": strconv.Itoa(len(data)),
		"contentHash": strconv.FormatUint(xxhash.Sum64(data), 16),
	}
}
