// Command clipforge is the queue CLI and daemon entry point. The daemon
// subcommand runs the workflow manager that moves jobs through the pipeline;
// the remaining subcommands administer jobs and renders against the shared
// queue database.
package main
