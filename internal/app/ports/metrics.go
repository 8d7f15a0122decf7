package ports

type CommandMetrics interface {
	RecordSuccess(command string)
	RecordRejected(command, code string)
	RecordFailure(command string)
}
