package v1

// BundleJobKind is the only kind accepted in a job file.
const BundleJobKind = "BundleJob"

// BundleJob describes a set of files to bundle into a single ZIP archive.
type BundleJob struct {
	Kind     string        `yaml:"kind" json:"kind" validate:"required,eq=BundleJob"`
	Metadata Metadata      `yaml:"metadata" json:"metadata"`
	Spec     BundleJobSpec `yaml:"spec" json:"spec"`
}

type Metadata struct {
	Name string `yaml:"name" json:"name" validate:"required"`
}

type BundleJobSpec struct {
	// Files lists the candidate files. Missing files are skipped at build time.
	Files []FileSpec `yaml:"files" json:"files" validate:"dive"`

	// Destination configures where the archive is written.
	Destination DestinationSpec `yaml:"destination" json:"destination"`

	// Archive configures the archive encoding (default: deflate).
	Archive *ArchiveSpec `yaml:"archive,omitempty" json:"archive,omitempty"`

	// Filter is an optional CEL expression evaluated for every existing file.
	// Available variables: path, name, size, ext. Files are kept when it is true.
	Filter string `yaml:"filter,omitempty" json:"filter,omitempty"`

	// Publish configures an optional sink the finished archive is copied to.
	Publish *PublishSpec `yaml:"publish,omitempty" json:"publish,omitempty"`
}

// FileSpec is a single candidate file. Path and Name support ${VAR} templates.
type FileSpec struct {
	// Path is the source file on the local filesystem.
	Path string `yaml:"path" json:"path" validate:"required" template:""`

	// Name is the entry name inside the archive. Defaults to Path.
	Name string `yaml:"name,omitempty" json:"name,omitempty" template:""`
}

type DestinationSpec struct {
	// Path is the archive file to create. Supports ${VAR} templates.
	Path string `yaml:"path" json:"path" validate:"required" template:""`

	// Overwrite replaces an existing archive instead of failing.
	Overwrite bool `yaml:"overwrite,omitempty" json:"overwrite,omitempty"`
}

type ArchiveSpec struct {
	// Compression is one of deflate, store or zstd. Default: "deflate".
	Compression string `yaml:"compression,omitempty" json:"compression,omitempty" validate:"omitempty,oneof=deflate store zstd"`

	// Level is the deflate level from 1 (fastest) to 9 (best).
	Level int `yaml:"level,omitempty" json:"level,omitempty" validate:"omitempty,min=1,max=9"`
}

// PublishSpec configures the publish sink (one of the fields should be set).
type PublishSpec struct {
	Stdout     *StdoutSinkSpec     `yaml:"stdout,omitempty" json:"stdout,omitempty"`
	Filesystem *FilesystemSinkSpec `yaml:"filesystem,omitempty" json:"filesystem,omitempty"`
	S3         *S3SinkSpec         `yaml:"s3,omitempty" json:"s3,omitempty"`
}

// StdoutSinkSpec writes the archive bytes to standard output.
type StdoutSinkSpec struct{}

type FilesystemSinkSpec struct {
	// Path is the directory the archive is copied into. Supports ${VAR} templates.
	Path string `yaml:"path" json:"path" validate:"required" template:""`
}

type S3SinkSpec struct {
	Bucket         string         `yaml:"bucket" json:"bucket" validate:"required" template:""`
	Prefix         *string        `yaml:"prefix,omitempty" json:"prefix,omitempty" template:""`
	Region         *string        `yaml:"region,omitempty" json:"region,omitempty" template:""`
	Endpoint       *string        `yaml:"endpoint,omitempty" json:"endpoint,omitempty" template:""`
	ForcePathStyle bool           `yaml:"force_path_style,omitempty" json:"force_path_style,omitempty"`
	Credentials    *S3Credentials `yaml:"credentials,omitempty" json:"credentials,omitempty"`
}

type S3Credentials struct {
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id" validate:"required" template:""`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key" validate:"required" template:""`
}
