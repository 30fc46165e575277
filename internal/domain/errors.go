package domain

import "errors"

var ErrNotFound = errors.New("not found")
var ErrInvalidFileIndex = errors.New("invalid file index")
var ErrRangeUnsatisfiable = errors.New("range not satisfiable")
var ErrUpstreamUnavailable = errors.New("upstream not ready")
var ErrTranscodeUnavailable = errors.New("failed to transcode")
