package core

import "github.com/google/generative-ai-go/genai"

// The tool catalog handed to the reasoning model on every call. Each
// declaration here must have a matching handler in Executor; NewExecutor
// checks the two stay in lock-step.
func toolDeclarations() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		{
			Name:        "add_task",
			Description: "Add a new task",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":       {Type: genai.TypeString, Description: "Title of the task"},
					"description": {Type: genai.TypeString, Description: "Optional description of the task"},
				},
				Required: []string{"title"},
			},
		},
		{
			Name:        "list_tasks",
			Description: "List tasks with optional status filter",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"status": {Type: genai.TypeString, Description: "Optional status filter (all, pending, completed)"},
				},
			},
		},
		{
			Name:        "update_task",
			Description: "Update an existing task",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"task_id":     {Type: genai.TypeString, Description: "The numeric ID of the task to update (NOT your user ID)"},
					"title":       {Type: genai.TypeString, Description: "Optional new title"},
					"description": {Type: genai.TypeString, Description: "Optional new description"},
				},
				Required: []string{"task_id"},
			},
		},
		{
			Name:        "complete_task",
			Description: "Mark a task as completed",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"task_id": {Type: genai.TypeString, Description: "The numeric ID of the task to complete (NOT your user ID)"},
				},
				Required: []string{"task_id"},
			},
		},
		{
			Name:        "delete_task",
			Description: "Delete a task",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"task_id": {Type: genai.TypeString, Description: "The numeric ID of the task to delete (NOT your user ID)"},
				},
				Required: []string{"task_id"},
			},
		},
		{
			Name:        "get_user_info",
			Description: "Get current user information",
		},
		{
			Name:        "search_tasks",
			Description: "Search for tasks by title",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {Type: genai.TypeString, Description: "The search query to match against task titles"},
				},
				Required: []string{"query"},
			},
		},
	}
}
