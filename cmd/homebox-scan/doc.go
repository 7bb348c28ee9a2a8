// Package main hosts the homebox-scan CLI entrypoint and command graph.
//
// The scan command drives the capture, review and submission wizard in the
// terminal on top of internal/workflow. The remaining commands inspect or
// clear the saved session, browse Homebox locations and labels, and manage
// configuration. Heavy lifting lives in the internal packages; commands here
// only wire them together and render results.
package main
