package env

import "os"

func IsGithubAction() bool {
	return os.Getenv("GITHUB_ACTIONS") == "true"
}

func IsLocalDev() bool {
	return os.Getenv("DRIFTSYNC_ENVIRONMENT") == "local"
}

func IsConcurrencyLockDisabled() bool {
	return os.Getenv("DRIFTSYNC_CONCURRENCY_LOCK_DISABLED") == "true"
}

// Diff3Bin returns the diff3 binary used for three-way merges. Defaults to
// "diff3" on PATH.
func Diff3Bin() string {
	if bin := os.Getenv("DRIFTSYNC_DIFF3_BIN"); bin != "" {
		return bin
	}
	return "diff3"
}

// GitBin returns the git binary used for diffing and patch application.
func GitBin() string {
	if bin := os.Getenv("DRIFTSYNC_GIT_BIN"); bin != "" {
		return bin
	}
	return "git"
}
