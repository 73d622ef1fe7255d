/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package records

// CommandCode is the discriminant of a relation edit command.
type CommandCode int

// Relation edit command codes, usable in write values of to-many fields.
const (
	CmdCreate CommandCode = 0 // create a record and link it
	CmdUpdate CommandCode = 1 // update a linked record
	CmdDelete CommandCode = 2 // unlink and delete a record
	CmdUnlink CommandCode = 3 // unlink, keep the record
	CmdLink   CommandCode = 4 // link an existing record
	CmdClear  CommandCode = 5 // unlink every record
	CmdSet    CommandCode = 6 // replace the links with the given ids
)

// Command is one edit of a to-many relation.
type Command struct {
	Code   CommandCode
	ID     int64
	IDs    []int64
	Values map[string]any
}

// Create makes a command creating a linked record.
func Create(values map[string]any) Command {
	return Command{Code: CmdCreate, Values: values}
}

// Update makes a command writing into a linked record.
func Update(id int64, values map[string]any) Command {
	return Command{Code: CmdUpdate, ID: id, Values: values}
}

// Delete makes a command deleting a linked record.
func Delete(id int64) Command { return Command{Code: CmdDelete, ID: id} }

// Unlink makes a command detaching a linked record.
func Unlink(id int64) Command { return Command{Code: CmdUnlink, ID: id} }

// Link makes a command attaching an existing record.
func Link(id int64) Command { return Command{Code: CmdLink, ID: id} }

// Clear makes a command detaching every linked record.
func Clear() Command { return Command{Code: CmdClear} }

// Set makes a command replacing the relation with the given ids.
func Set(ids ...int64) Command { return Command{Code: CmdSet, IDs: ids} }
