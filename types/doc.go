// Package types provides core types shared across switchboard.
// This package has ZERO dependencies on other switchboard packages to avoid
// circular imports. All other packages should import types from here.
package types
