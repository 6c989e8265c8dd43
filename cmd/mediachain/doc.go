// Command mediachain runs the content-addressed analysis chain over recorded
// media and manages its step cache and run history.
package main
