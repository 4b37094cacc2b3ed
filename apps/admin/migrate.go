package main

func (cli *commandLine) migrate(args []string) error {
	return runMigrationFunc(cli.db, args[0], args[1:]...)
}
