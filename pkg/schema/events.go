package schema

// Event type constants published on the streaming hub.
const (
	EventNodeAdded       = "node_added"
	EventNodeUpdated     = "node_updated"
	EventNodeDeleted     = "node_deleted"
	EventEdgeAdded       = "edge_added"
	EventEdgeUpdated     = "edge_updated"
	EventEdgeDeleted     = "edge_deleted"
	EventSelectionChange = "selection_changed"

	EventWorkflowCreated    = "workflow_created"
	EventWorkflowSaved      = "workflow_saved"
	EventWorkflowDeleted    = "workflow_deleted"
	EventWorkflowDuplicated = "workflow_duplicated"
	EventWorkflowSwitched   = "workflow_switched"
	EventWorkflowImported   = "workflow_imported"
	EventWorkflowCleared    = "workflow_cleared"
	EventWorkflowsLoaded    = "workflows_loaded"
	EventManagerToggled     = "manager_toggled"

	EventRunStarted    = "run_started"
	EventNodeStatus    = "node_status"
	EventRunCompleted  = "run_completed"
	EventRunStopped    = "run_stopped"
	EventSettingsSaved = "settings_saved"
	EventSettingsReset = "settings_reset"
)
