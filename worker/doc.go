// Package worker is the client side of the task protocol.
//
// In claim mode a worker registers, keeps a heartbeat going, and polls
// /tasks/claim. Each claimed task is turned into a prompt for an
// llm.Provider; a reply completes the task and an error fails it.
//
// Push mode keeps the older flow: register as a bot, list tasks, assign the
// first open one, and deliver a summary. Model errors are folded into the
// summary instead of failing the task.
package worker
