package fetch

import "fmt"

// Cache keys. Every task collection key starts with "tasks" so the whole
// family can be invalidated by prefix.

// TasksKey is the full task list shown on the board.
func TasksKey() string { return "tasks" }

// PersonalTasksKey holds tasks outside any group.
func PersonalTasksKey() string { return "tasks/personal" }

// TopTasksKey holds the most-priority tasks.
func TopTasksKey() string { return "tasks/top" }

// GroupTasksKey holds the tasks of one group.
func GroupTasksKey(groupID int64) string { return fmt.Sprintf("tasks/group/%d", groupID) }

// SubtasksKey holds the direct children of a task, without the task itself.
func SubtasksKey(taskID int64) string { return fmt.Sprintf("tasks/subtasks/%d", taskID) }

// StatusesKey holds the board columns.
func StatusesKey() string { return "statuses" }

// PrioritiesKey holds the priority reference data.
func PrioritiesKey() string { return "priorities" }

// CategoriesKey holds every category.
func CategoriesKey() string { return "categories" }

// GroupCategoriesKey holds the categories of one group.
func GroupCategoriesKey(groupID int64) string { return fmt.Sprintf("categories/group/%d", groupID) }

// GroupsKey holds the groups the user belongs to.
func GroupsKey() string { return "groups" }

// ChatsKey holds the chats attached to a task.
func ChatsKey(taskID int64) string { return fmt.Sprintf("chats/task/%d", taskID) }
