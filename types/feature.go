package types

// FeatureExtension is the fixed extension feature files are matched against.
const FeatureExtension = ".feature"

// FeatureFile is a single discovered feature file. Immutable once discovered.
type FeatureFile struct {
	// Path is the absolute path to the feature file on disk.
	Path string
	// Name is the logical, package-like name derived from the file's
	// location under its resource root (e.g. "billing.checkout"). It is
	// used for output-file naming and log correlation only.
	Name string
}

func (f FeatureFile) String() string {
	return f.Name
}
