package config

import (
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"strings"
	"time"
)

var repoPattern = regexp.MustCompile(`[:/]([^/]+/[^/]+?)(?:\.git)?$`)
var shaPattern = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)

// resolveGitContext mirrors AgentConfig.resolveGitContext: explicit
// release/version/commit/branch/repository values (already loaded from
// agent args / properties / env) take priority over platform-specific CI
// env vars. Returns nil if no release information is available from any
// source.
func (c *Config) resolveGitContext(env func(string) string) *ReleaseContext {
	if env == nil {
		env = os.Getenv
	}

	parsedVersion := c.version
	parsedCommit := c.commit

	if c.release != "" && parsedVersion == "" {
		if at := strings.IndexByte(c.release, '@'); at > 0 {
			parsedVersion = c.release[at+1:]
		} else if shaPattern.MatchString(c.release) {
			if parsedCommit == "" {
				parsedCommit = c.release
			}
		} else {
			parsedVersion = c.release
		}
	}

	if parsedCommit == "" {
		parsedCommit = firstNonEmpty(env,
			"HEROKU_SLUG_COMMIT", "VERCEL_GIT_COMMIT_SHA", "CODEBUILD_RESOLVED_SOURCE_VERSION",
			"CIRCLE_SHA1", "GITHUB_SHA", "CI_COMMIT_SHA", "GIT_COMMIT", "SOURCE_VERSION")
	}

	resolvedBranch := c.branch
	if resolvedBranch == "" {
		resolvedBranch = firstNonEmpty(env,
			"VERCEL_GIT_COMMIT_REF", "CIRCLE_BRANCH", "GITHUB_REF_NAME", "CI_COMMIT_BRANCH", "CI_COMMIT_TAG")
	}

	resolvedRepo := c.repository
	if resolvedRepo == "" {
		vercelSlug := env("VERCEL_GIT_REPO_SLUG")
		vercelOwner := env("VERCEL_GIT_REPO_OWNER")
		githubRepo := env("GITHUB_REPOSITORY")
		gitlabPath := env("CI_PROJECT_PATH")
		circleRepo := env("CIRCLE_REPOSITORY_URL")

		switch {
		case vercelSlug != "" && vercelOwner != "":
			resolvedRepo = "https://github.com/" + vercelOwner + "/" + vercelSlug
		case githubRepo != "":
			resolvedRepo = "https://github.com/" + githubRepo
		case gitlabPath != "":
			resolvedRepo = "https://gitlab.com/" + gitlabPath
		case circleRepo != "":
			resolvedRepo = circleRepo
		}
	}

	if parsedVersion == "" {
		parsedVersion = firstNonEmpty(env, "HEROKU_RELEASE_VERSION", "APP_VERSION")
	}

	if parsedVersion == "" && parsedCommit == "" && resolvedBranch == "" && resolvedRepo == "" {
		return nil
	}

	projectIdentifier, projectName := "", ""
	if resolvedRepo != "" {
		if m := repoPattern.FindStringSubmatch(resolvedRepo); m != nil {
			projectIdentifier = m[1]
			parts := strings.Split(projectIdentifier, "/")
			projectName = parts[len(parts)-1]
		}
	}

	commitShort := parsedCommit
	if len(parsedCommit) >= 7 {
		commitShort = parsedCommit[:7]
	}

	return &ReleaseContext{
		CommitHash:        parsedCommit,
		CommitShort:       commitShort,
		Branch:            resolvedBranch,
		RemoteURL:         resolvedRepo,
		Version:           parsedVersion,
		ProjectName:       projectName,
		ProjectIdentifier: projectIdentifier,
		Source:            "agent",
		CapturedAt:        time.Now().UTC().Format(time.RFC3339),
	}
}

func firstNonEmpty(env func(string) string, keys ...string) string {
	for _, k := range keys {
		if v := env(k); v != "" {
			return v
		}
	}
	return ""
}

// resolveHostname mirrors resolveHostname(), falling back to "unknown".
func resolveHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

// generateAgentID mirrors generateAgentId(): a hex timestamp plus a hex
// random suffix.
func generateAgentID() string {
	return fmt.Sprintf("agent-%x-%x", time.Now().UnixMilli(), rand.Intn(0x10000))
}
