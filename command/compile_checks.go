package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ProcessInboundMessage]       = (*ProcessInboundCommand)(nil)
	_ gocmd.Commander[SendTextMessage]             = (*SendTextCommand)(nil)
	_ gocmd.Commander[SendInteractiveMessage]      = (*SendInteractiveCommand)(nil)
	_ gocmd.Commander[SendTemplateMessage]         = (*SendTemplateCommand)(nil)
	_ gocmd.Commander[ExtendWindowMessage]         = (*ExtendWindowCommand)(nil)
	_ gocmd.Commander[SweepWindowsMessage]         = (*SweepWindowsCommand)(nil)
	_ gocmd.Commander[RegisterFlowMessage]         = (*RegisterFlowCommand)(nil)
	_ gocmd.Commander[UpsertTemplateStatusMessage] = (*UpsertTemplateStatusCommand)(nil)
	_ gocmd.Commander[SaveCredentialsMessage]      = (*SaveCredentialsCommand)(nil)
	_ gocmd.Commander[SweepStaleSessionsMessage]   = (*SweepStaleSessionsCommand)(nil)
)
