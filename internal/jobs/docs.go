// Package jobs provides scheduled background tasks for screen sessions.
//
// Jobs use github.com/robfig/cron/v3. The only recurring task is the live poll:
// every session runs a LivePollJob that calls the reconciliation engine's Refresh
// every 4 seconds while any tracked order is still active.
//
// # Usage
//
//	job, err := jobs.NewLivePollJob(engine, 4*time.Second, logger)
//	if err != nil {
//		return err
//	}
//	if err := jobManager.Add(sessionID, job); err != nil {
//		return err
//	}
//	defer jobManager.Remove(sessionID)
//
// # Stopping
//
// A LivePollJob stops itself after a refresh leaves every order terminal. Focus
// refreshes immediately and reschedules the job when something became active
// again. JobManager.StopAll stops every registered job at shutdown.
package jobs
