// Package schemasassets embeds the JSON Schemas gopathways validates
// against, so installed binaries need no schema files on disk.
package schemasassets

import _ "embed"

// JobManifestSchema validates job manifests after YAML/JSON normalization.
//
//go:embed job-manifest.schema.json
var JobManifestSchema []byte

// PathwaysProgramSchema validates each rendered Pathways document before
// it is stored.
//
//go:embed pathways-program.schema.json
var PathwaysProgramSchema []byte
