package remote

import (
	"emperror.dev/errors"
	"github.com/asaskevich/govalidator"
)

// Same concept as gin.H but for query strings.
type q map[string]string

type Pagination struct {
	CurrentPage uint `json:"current_page"`
	LastPage    uint `json:"last_page"`
	PerPage     uint `json:"per_page"`
	Total       uint `json:"total"`
}

// World is the desired configuration of one game server instance as owned by
// the control plane. The daemon receives copies and never mutates the source.
type World struct {
	ID      string `json:"id" valid:"required,matches(^[A-Za-z0-9_-]+$)"`
	OwnerID string `json:"owner_id" valid:"required,matches(^[A-Za-z0-9_-]+$)"`
	Name    string `json:"name"`
	// Explicit public hostname label. When empty one is derived from Name.
	Hostname  string `json:"hostname" valid:"optional,matches(^[a-z0-9-]*$)"`
	VersionID string `json:"version_id" valid:"required,matches(^[A-Za-z0-9._-]+$)"`
	// Heap size in MiB handed to the JVM through %max_mem%.
	AllocatedMemory int  `json:"allocated_memory" valid:"range(1|1048576)"`
	Enabled         bool `json:"enabled"`
}

// Validate makes sure the world can safely be used to build paths on disk.
func (w World) Validate() error {
	if _, err := govalidator.ValidateStruct(w); err != nil {
		return errors.Wrap(err, "remote: invalid world")
	}
	return nil
}
