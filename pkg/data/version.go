package data

import "strconv"

// DataVersion represents one logical generation of a Data. A version is
// valid until all of its readers have consumed it and its writer has
// committed, at which point it becomes eligible for removal (subject to
// deletion blocks on the owning DataInfo).
type DataVersion struct {
	DataId       int64
	VersionId    int64
	Predecessor  int64 // version id this one rolls back to on full cancellation, 0 if none
	PendingReads int
	PendingWrite bool
	BeenUsed     bool
	ToDelete     bool
	Cancelled    bool
}

// InstanceId is the (dataId, versionId) pair addressing one version's bytes
// in the cluster's data-transfer layer. Its canonical string form is the
// renaming.
type InstanceId struct {
	DataId    int64
	VersionId int64
}

// Renaming returns the canonical string key under which this instance's
// bytes are addressed by the transfer layer.
func (id InstanceId) Renaming() string {
	return formatRenaming(id.DataId, id.VersionId)
}

func formatRenaming(dataId, versionId int64) string {
	return "d" + strconv.FormatInt(dataId, 10) + "v" + strconv.FormatInt(versionId, 10)
}
