package cache

import "time"

// Namespace names used across the pipeline.
const (
	NSDefault   = "default"
	NSProvider  = "provider-raw"
	NSLexicon   = "lexicon"
	NSSearch    = "search-queries"
	NSVectors   = "semantic-vectors"
	NSLLM       = "llm-responses"
	NSLanguages = "language-lookups"
	NSEntries   = "synthesized-entries"
	NSBlobs     = "entry-blobs"
)

// NamespaceConfig declares one namespace. Only the size class, disk TTL
// and compression are declared per namespace; memory limit and memory
// TTL derive from the size class.
type NamespaceConfig struct {
	Name        string        `yaml:"name"`
	SizeClass   SizeClass     `yaml:"size_class"`
	DiskTTL     time.Duration `yaml:"disk_ttl"`
	Compression Compression   `yaml:"compression"`

	// Derived at registration.
	MemoryLimit int           `yaml:"-"`
	MemoryTTL   time.Duration `yaml:"-"`
}

// derive fills the size-class dependent fields.
func (n *NamespaceConfig) derive() {
	switch n.SizeClass {
	case SizeSmall:
		n.MemoryLimit = 256
		n.MemoryTTL = 5 * time.Minute
	case SizeLarge:
		n.MemoryLimit = 4096
		n.MemoryTTL = time.Hour
	default: // medium
		n.SizeClass = SizeMedium
		n.MemoryLimit = 1024
		n.MemoryTTL = 15 * time.Minute
	}
	if n.Compression == "" {
		n.Compression = CompressionNone
	}
}

// DefaultNamespaces returns the namespace table the pipeline registers
// at startup. A zero DiskTTL keeps a namespace memory-only.
func DefaultNamespaces() []NamespaceConfig {
	return []NamespaceConfig{
		{Name: NSDefault, SizeClass: SizeMedium},
		{Name: NSProvider, SizeClass: SizeMedium, DiskTTL: 7 * 24 * time.Hour, Compression: CompressionZstd},
		{Name: NSLexicon, SizeClass: SizeLarge, DiskTTL: 30 * 24 * time.Hour, Compression: CompressionZstd},
		{Name: NSSearch, SizeClass: SizeSmall, DiskTTL: 24 * time.Hour, Compression: CompressionLZ4},
		{Name: NSVectors, SizeClass: SizeLarge, DiskTTL: 30 * 24 * time.Hour, Compression: CompressionZstd},
		{Name: NSLLM, SizeClass: SizeMedium, DiskTTL: 7 * 24 * time.Hour, Compression: CompressionZstd},
		{Name: NSLanguages, SizeClass: SizeSmall, DiskTTL: 30 * 24 * time.Hour},
		{Name: NSEntries, SizeClass: SizeLarge, DiskTTL: 90 * 24 * time.Hour, Compression: CompressionZstd},
		{Name: NSBlobs, SizeClass: SizeSmall, DiskTTL: 90 * 24 * time.Hour, Compression: CompressionZstd},
	}
}
