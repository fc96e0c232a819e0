// Package application provides application initialization and dependency wiring.
// It assembles the solver engine, planner, stores, handlers and router into an
// HTTP server, keeping the main package focused on CLI parsing and shutdown.
package application
