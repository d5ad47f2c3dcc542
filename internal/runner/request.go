package runner

import (
	"fmt"

	v1 "github.com/infracollect/zipdrop/apis/v1"
	"github.com/infracollect/zipdrop/internal/builder"
	"github.com/infracollect/zipdrop/internal/engine/archivers"
	"github.com/samber/lo"
)

// BuildRequest turns a parsed job into a builder request, compiling the
// filter and checking the archive settings up front.
func BuildRequest(job v1.BundleJob) (builder.Request, error) {
	spec := job.Spec

	req := builder.Request{
		Candidates: lo.Map(spec.Files, func(f v1.FileSpec, _ int) builder.Candidate {
			return builder.Candidate{Path: f.Path, Name: f.Name}
		}),
		Destination: spec.Destination.Path,
		Overwrite:   spec.Destination.Overwrite,
	}

	if spec.Archive != nil {
		req.Compression = spec.Archive.Compression
		req.Level = spec.Archive.Level
	}

	if _, _, err := archivers.ParseCompression(req.Compression, req.Level); err != nil {
		return builder.Request{}, fmt.Errorf("invalid archive settings: %w", err)
	}

	filter, err := builder.CompileFilter(spec.Filter)
	if err != nil {
		return builder.Request{}, err
	}
	req.Filter = filter

	return req, nil
}
