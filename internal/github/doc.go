// Package github publishes an analysis result as a pull request review.
//
// Findings on files the pull request touches become inline comments; a
// generated fix marked applicable is attached as a suggestion block. Everything
// else is summarized in the review body. Authentication comes from the
// GITHUB_TOKEN environment variable.
package github
